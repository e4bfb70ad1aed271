package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var templatesPath = []string{"connectors", "qq", "templates"}

// decodeHook keeps viper's default hooks and accepts a bare string where a
// Template is expected, so the legacy list form decodes with weight 1.
func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		func(from, to reflect.Type, data any) (any, error) {
			if to != reflect.TypeOf(Template{}) || from.Kind() != reflect.String {
				return data, nil
			}
			return map[string]any{"template": data, "weight": 1}, nil
		},
	))
}

// legacyTemplates reports whether the templates key holds plain strings and
// returns the upgraded entries.
func legacyTemplates(v *viper.Viper) ([]Template, bool) {
	list, ok := v.Get("connectors.qq.templates").([]any)
	if !ok {
		return nil, false
	}
	legacy := false
	out := make([]Template, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case string:
			legacy = true
			out = append(out, Template{Template: t, Weight: 1})
		default:
			m, err := cast.ToStringMapE(t)
			if err != nil {
				continue
			}
			out = append(out, Template{
				Template: cast.ToString(m["template"]),
				Weight:   cast.ToInt(m["weight"]),
			})
		}
	}
	return out, legacy
}

// rewriteTemplates replaces only the templates sequence in the YAML file,
// keeping every other node and comment as written.
func rewriteTemplates(path string, entries []Template) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return fmt.Errorf("unexpected document shape")
	}

	node := doc.Content[0]
	for _, key := range templatesPath {
		node = mappingValue(node, key)
		if node == nil {
			return fmt.Errorf("key %v not found", templatesPath)
		}
	}

	var seq yaml.Node
	if err := seq.Encode(entries); err != nil {
		return err
	}
	seq.HeadComment = node.HeadComment
	seq.LineComment = node.LineComment
	*node = seq

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0600)
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
