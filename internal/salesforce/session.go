// Package salesforce implements the remote bulk service contract over the
// Salesforce asynchronous Bulk API.
//
// Job and batch descriptors travel as XML, batch payloads and result
// streams as CSV. Authentication is out of scope: the caller establishes a
// session elsewhere and hands this package an explicit [Session]; there is
// no process-global connection state.
package salesforce

import (
	"fmt"
	"strings"
)

// DefaultAPIVersion is the async API version used when none is configured.
const DefaultAPIVersion = "45.0"

// Session is a caller-owned handle to an authenticated Salesforce session.
// It is passed explicitly into the client; components never share hidden
// global session state.
type Session struct {
	// InstanceURL is the org instance, e.g. "https://na1.salesforce.com".
	InstanceURL string

	// SessionID is the session token obtained at login.
	SessionID string

	// APIVersion selects the async endpoint version (default 45.0).
	APIVersion string
}

// Validate checks that the session has everything the adapter needs.
func (s Session) Validate() error {
	var missing []string
	if strings.TrimSpace(s.InstanceURL) == "" {
		missing = append(missing, "instance URL")
	}
	if strings.TrimSpace(s.SessionID) == "" {
		missing = append(missing, "session ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("salesforce session missing %s", strings.Join(missing, " and "))
	}
	return nil
}

// endpoint returns the async API base, e.g.
// "https://na1.salesforce.com/services/async/45.0".
func (s Session) endpoint() string {
	ver := s.APIVersion
	if ver == "" {
		ver = DefaultAPIVersion
	}
	return strings.TrimSuffix(s.InstanceURL, "/") + "/services/async/" + ver
}
