// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import "regexp"

// emailRegex matches local-part@domain where:
// - the local part is one or more of [A-Za-z0-9.!#$%&'*+/=?^_`{|}~-]
// - the domain is one or more dot-separated labels of [A-Za-z0-9-]
var emailRegex = regexp.MustCompile(
	"^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9-]+(?:\\.[a-zA-Z0-9-]+)*$",
)

// ValidateEmail reports whether email is a syntactically valid address.
// No DNS or length checks are made.
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}
