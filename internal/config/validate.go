package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the relations between fields.
func (c *Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("invalid %s: failed %q constraint (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if !slices.Contains(c.Scenario.Buckets, c.Scenario.Bucket) {
		return fmt.Errorf("bucket %q is not among the configured buckets %v", c.Scenario.Bucket, c.Scenario.Buckets)
	}
	if c.Ports.Upper-c.Ports.Lower < 3 {
		return fmt.Errorf("port range [%d, %d) cannot hold three ports", c.Ports.Lower, c.Ports.Upper)
	}
	return nil
}
