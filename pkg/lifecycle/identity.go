package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrUnresolvedAssociations is returned when identity derivation runs on a
// binding whose environment, organization or content view is not available.
var ErrUnresolvedAssociations = errors.New("binding environment and content view must be resolved")

// Digester produces the deterministic one-way digest used for Candlepin ids.
type Digester interface {
	Hexdigest(data string) string
}

// DigesterFunc adapts a plain function to the Digester interface.
type DigesterFunc func(data string) string

// Hexdigest calls f(data).
func (f DigesterFunc) Hexdigest(data string) string { return f(data) }

// SHA256Digester hex-encodes the SHA-256 sum of its input.
type SHA256Digester struct{}

// Hexdigest implements Digester.
func (SHA256Digester) Hexdigest(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// LifecycleEnvironment returns the bound environment.
func (c *ContentViewEnvironment) LifecycleEnvironment() *Environment {
	return c.Environment
}

// Owner returns the environment owning this binding.
func (c *ContentViewEnvironment) Owner() *Environment {
	return c.Environment
}

// DefaultEnvironment reports whether this is the content view's unfiltered
// presence in Library: the view is the org default and the environment is
// the library.
func (c *ContentViewEnvironment) DefaultEnvironment() bool {
	if c.ContentView == nil || c.Environment == nil {
		return false
	}
	return c.ContentView.Default && c.Environment.Library
}

// CandlepinName is the environment name Candlepin knows this binding by.
func (c *ContentViewEnvironment) CandlepinName() string {
	if c.Environment == nil {
		return ""
	}
	if c.DefaultEnvironment() {
		return c.Environment.Label
	}
	if c.ContentView == nil {
		return ""
	}
	return c.Environment.Label + "/" + c.ContentView.Label
}

// IdentityResolver derives the name, label and Candlepin id of bindings.
type IdentityResolver struct {
	digest Digester
}

// NewIdentityResolver creates an IdentityResolver. A nil digester selects
// SHA256Digester.
func NewIdentityResolver(d Digester) *IdentityResolver {
	if d == nil {
		d = SHA256Digester{}
	}
	return &IdentityResolver{digest: d}
}

// GenerateInfo fills Name, Label and CPID when they are empty. Fields that are
// already set are left untouched, so calling it again is a no-op.
func (r *IdentityResolver) GenerateInfo(c *ContentViewEnvironment) error {
	env, cv := c.Environment, c.ContentView
	if env == nil || cv == nil {
		return ErrUnresolvedAssociations
	}

	if c.Name == "" {
		c.Name = env.Name
	}

	if c.DefaultEnvironment() {
		if env.Organization == nil {
			return ErrUnresolvedAssociations
		}
		if c.Label == "" {
			c.Label = env.Label
		}
		if c.CPID == "" {
			c.CPID = r.digest.Hexdigest(env.Organization.Label)
		}
		return nil
	}

	if c.Label == "" {
		c.Label = env.Label + "/" + cv.Label
	}
	if c.CPID == "" {
		c.CPID = r.digest.Hexdigest(fmt.Sprintf("%d-%d", env.ID, cv.ID))
	}
	return nil
}

type resolverCtxKey struct{}

// ContextWithResolver attaches r to ctx so the save hook derives identity
// with it instead of the default SHA-256 resolver.
func ContextWithResolver(ctx context.Context, r *IdentityResolver) context.Context {
	return context.WithValue(ctx, resolverCtxKey{}, r)
}

func resolverFromContext(ctx context.Context) *IdentityResolver {
	if ctx != nil {
		if r, ok := ctx.Value(resolverCtxKey{}).(*IdentityResolver); ok && r != nil {
			return r
		}
	}
	return NewIdentityResolver(nil)
}

// BeforeSave derives the binding identity immediately before it is written.
func (c *ContentViewEnvironment) BeforeSave(tx *gorm.DB) error {
	if err := loadBindingAssociations(tx.Session(&gorm.Session{NewDB: true}), c); err != nil {
		return err
	}
	return resolverFromContext(tx.Statement.Context).GenerateInfo(c)
}

// loadBindingAssociations loads the environment (with its organization) and
// the content view of c when they are missing.
func loadBindingAssociations(db *gorm.DB, c *ContentViewEnvironment) error {
	if c.Environment == nil && c.EnvironmentID != 0 {
		var env Environment
		if err := db.Preload("Organization").First(&env, c.EnvironmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("load environment: %w", err)
		}
		c.Environment = &env
	}
	if c.Environment != nil && c.Environment.Organization == nil && c.Environment.OrganizationID != 0 {
		var org Organization
		if err := db.First(&org, c.Environment.OrganizationID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load organization: %w", err)
		} else if err == nil {
			c.Environment.Organization = &org
		}
	}
	if c.ContentView == nil && c.ContentViewID != 0 {
		var cv ContentView
		if err := db.First(&cv, c.ContentViewID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("load content view: %w", err)
		}
		c.ContentView = &cv
	}
	return nil
}
