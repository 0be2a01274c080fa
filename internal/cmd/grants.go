package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/3leaps/bucketwarden/pkg/provider"
)

// grantFile is the on-disk form of an ACL grant set:
//
//	grants:
//	  - grantee: {type: CanonicalUser, id: "79a5..."}
//	    permission: READ
type grantFile struct {
	Grants []provider.Grant `json:"grants" yaml:"grants"`
}

// loadGrants reads a grant file. The format follows the extension:
// .json for JSON, .yaml/.yml for YAML, YAML otherwise.
func loadGrants(path string) ([]provider.Grant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("grant file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read grant file: %w", err)
	}
	return parseGrants(data, path)
}

func parseGrants(data []byte, path string) ([]provider.Grant, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("grant file is empty")
	}

	var gf grantFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &gf); err != nil {
			return nil, fmt.Errorf("invalid JSON in grant file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &gf); err != nil {
			return nil, fmt.Errorf("invalid YAML in grant file: %w", err)
		}
	}

	if len(gf.Grants) == 0 {
		return nil, errors.New("grant file has no grants")
	}
	for i, g := range gf.Grants {
		if err := validateGrant(g); err != nil {
			return nil, fmt.Errorf("grants[%d]: %w", i, err)
		}
	}
	return gf.Grants, nil
}

// validateGrant checks the grant shape only. Whether the grantee exists is
// for the backend to decide.
func validateGrant(g provider.Grant) error {
	switch g.Permission {
	case provider.PermissionFullControl, provider.PermissionRead, provider.PermissionWrite,
		provider.PermissionReadACP, provider.PermissionWriteACP:
	default:
		return fmt.Errorf("unknown permission %q", g.Permission)
	}

	switch g.Grantee.Type {
	case provider.GranteeCanonicalUser:
		if g.Grantee.ID == "" {
			return errors.New("canonical user grantee requires id")
		}
	case provider.GranteeEmail:
		if g.Grantee.EmailAddress == "" {
			return errors.New("email grantee requires email_address")
		}
	case provider.GranteeGroup:
		if g.Grantee.URI == "" {
			return errors.New("group grantee requires uri")
		}
	default:
		return fmt.Errorf("unknown grantee type %q", g.Grantee.Type)
	}
	return nil
}
