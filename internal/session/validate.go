package session

import (
	"fmt"
	"regexp"
)

var clientIDRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateClientID checks that id is safe to use as a directory name
// and in URL paths. Generated UUIDs always pass.
func ValidateClientID(id string) error {
	if !clientIDRegexp.MatchString(id) {
		return fmt.Errorf("invalid client id %q: must match ^[A-Za-z0-9_-]{1,64}$", id)
	}
	return nil
}
