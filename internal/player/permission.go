package player

import "slices"

// AdminProperty marks a player as admin on every platform.
const AdminProperty = "admin"

// Permission decides whether a sender is an administrator.
type Permission struct {
	admins func() map[string][]string
	reg    *Registry
}

// NewPermission reads the admin lists through admins on every call so a
// config reload takes effect immediately. reg may be nil.
func NewPermission(admins func() map[string][]string, reg *Registry) *Permission {
	return &Permission{admins: admins, reg: reg}
}

// IsAdmin reports whether id on platform is listed under
// permissions.admins.<platform> or belongs to a player with the admin
// property. For the minecraft platform id is the in-game name.
func (p *Permission) IsAdmin(platform, id string) bool {
	if id == "" {
		return false
	}
	if p.admins != nil && slices.Contains(p.admins()[platform], id) {
		return true
	}
	if p.reg == nil {
		return false
	}

	var pl Player
	var ok bool
	if platform == PlatformMinecraft {
		pl, ok = p.reg.FindByName(id)
	} else {
		pl, ok = p.reg.FindByAccount(platform, id)
	}
	return ok && pl.Bool(AdminProperty)
}
