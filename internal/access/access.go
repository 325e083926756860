// Package access provisions the roles and users that may read or write a
// loaded table.
package access

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"csvschema/internal/config"
	"csvschema/internal/storage"
)

// Group is a role without login that is granted privileges on a schema.
type Group struct {
	Name       string
	Privileges []string
}

// User is a login role that joins groups.
type User struct {
	Name     string
	Password string
	Groups   []string
}

// Plan is the full set of access changes for one database schema.
type Plan struct {
	Database     string
	Schema       string
	RevokePublic bool
	Groups       []Group
	Users        []User
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return !p.RevokePublic && len(p.Groups) == 0 && len(p.Users) == 0
}

// PlanFrom resolves an access configuration. Passwords are read with getenv
// (os.Getenv when nil); a missing password is an error.
func PlanFrom(cfg config.AccessConfig, database, schema string, getenv func(string) string) (Plan, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	p := Plan{Database: database, Schema: schema, RevokePublic: cfg.RevokePublic}
	for _, g := range cfg.Groups {
		p.Groups = append(p.Groups, Group{Name: g.Name, Privileges: g.Privileges})
	}
	for _, u := range cfg.Users {
		pw := getenv(u.PasswordEnv)
		if pw == "" {
			return Plan{}, fmt.Errorf("access: user %s: environment variable %s is empty", u.Name, u.PasswordEnv)
		}
		p.Users = append(p.Users, User{Name: u.Name, Password: pw, Groups: u.Groups})
	}
	return p, p.Validate()
}

// Validate checks names, privileges and group references.
func (p Plan) Validate() error {
	groups := make(map[string]bool, len(p.Groups))
	for _, g := range p.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("access: group with empty name")
		}
		if groups[g.Name] {
			return fmt.Errorf("access: duplicate group %s", g.Name)
		}
		groups[g.Name] = true
		if len(g.Privileges) == 0 {
			return fmt.Errorf("access: group %s has no privileges", g.Name)
		}
		for _, priv := range g.Privileges {
			if !config.ValidPrivilege(priv) {
				return fmt.Errorf("access: group %s: unknown privilege %q", g.Name, priv)
			}
		}
	}

	users := make(map[string]bool, len(p.Users))
	for _, u := range p.Users {
		if strings.TrimSpace(u.Name) == "" {
			return fmt.Errorf("access: user with empty name")
		}
		if users[u.Name] || groups[u.Name] {
			return fmt.Errorf("access: duplicate role name %s", u.Name)
		}
		users[u.Name] = true
		for _, g := range u.Groups {
			if !groups[g] {
				return fmt.Errorf("access: user %s: unknown group %s", u.Name, g)
			}
		}
	}
	return nil
}

// Summary counts the operations Apply performed.
type Summary struct {
	Groups      int
	Grants      int
	Users       int
	Memberships int
}

// Apply runs the plan in order: revoke public privileges, ensure groups,
// grant schema privileges to groups, ensure users, add memberships. Every
// step is idempotent, so Apply can be re-run after a partial failure.
func Apply(ctx context.Context, admin storage.Admin, p Plan) (Summary, error) {
	var s Summary
	if err := p.Validate(); err != nil {
		return s, err
	}

	if p.RevokePublic {
		if err := admin.RevokePublic(ctx, p.Database, p.Schema); err != nil {
			return s, err
		}
		log.Printf("access: revoked PUBLIC privileges (database=%s schema=%s)", p.Database, p.Schema)
	}

	for _, g := range p.Groups {
		if err := admin.EnsureRole(ctx, g.Name); err != nil {
			return s, err
		}
		s.Groups++
	}

	for _, g := range p.Groups {
		err := admin.GrantSchema(ctx, storage.Grant{
			Role:       g.Name,
			Database:   p.Database,
			Schema:     p.Schema,
			Privileges: g.Privileges,
		})
		if err != nil {
			return s, err
		}
		s.Grants++
		log.Printf("access: granted %s on schema %s to %s", strings.Join(g.Privileges, ","), p.Schema, g.Name)
	}

	for _, u := range p.Users {
		if err := admin.EnsureUser(ctx, u.Name, u.Password); err != nil {
			return s, err
		}
		s.Users++
	}

	for _, u := range p.Users {
		for _, g := range u.Groups {
			if err := admin.GrantRole(ctx, g, u.Name); err != nil {
				return s, err
			}
			s.Memberships++
		}
	}

	log.Printf("access: groups=%d grants=%d users=%d memberships=%d", s.Groups, s.Grants, s.Users, s.Memberships)
	return s, nil
}
