package config

import "github.com/spf13/viper"

// SetDefaults 设置所有配置项的默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server_name", "Server")
	v.SetDefault("command_prefix", "#")

	// Log 配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetDefault("storage.path", "~/.mcqq/mcqq.db")
	v.SetDefault("i18n.lang", "zh_cn")
	v.SetDefault("i18n.path", "")

	// Host 配置
	v.SetDefault("host.workdir", ".")
	v.SetDefault("host.stop_command", "stop")
	v.SetDefault("host.rcon.address", "127.0.0.1:25575")
	v.SetDefault("host.rcon.timeout", 5)
	v.SetDefault("host.cleanup_schedule", "@every 10m")

	// Connectors 配置；enable_receive / enable_send 不设默认值，缺省时继承 enable
	v.SetDefault("connectors.minecraft.enable", true)
	v.SetDefault("connectors.minecraft.name", "Minecraft")
	v.SetDefault("connectors.minecraft.join_leave", true)

	v.SetDefault("connectors.qq.enable", false)
	v.SetDefault("connectors.qq.name", "QQ")
	v.SetDefault("connectors.qq.url", "ws://127.0.0.1:3001")
	v.SetDefault("connectors.qq.allow_private", false)
	v.SetDefault("connectors.qq.max_message_length", 2000)
	v.SetDefault("connectors.qq.getter_timeout", 9)
	v.SetDefault("connectors.qq.reconnect", 5)

	v.SetDefault("connectors.bridge.enable", false)
	v.SetDefault("connectors.bridge.name", "Bridge")
	v.SetDefault("connectors.bridge.role", RoleClient)
	v.SetDefault("connectors.bridge.listen", "0.0.0.0:8765")
	v.SetDefault("connectors.bridge.url", "ws://127.0.0.1:8765/bridge")
	v.SetDefault("connectors.bridge.reconnect", 5)
	v.SetDefault("connectors.bridge.dedup_ttl", 60)

	v.SetDefault("connectors.test.enable", false)
	v.SetDefault("connectors.test.name", "Test")

	// Players 配置
	v.SetDefault("players.max_java", 1)
	v.SetDefault("players.max_bedrock", 1)
	v.SetDefault("players.max_accounts", 1)

	// Systems 配置
	v.SetDefault("systems.bind.require_bind", false)
	v.SetDefault("systems.bind.cooldown", 60)
}
