// pkg/model/status.go
package model

import "time"

// RecentActivityWindow is how long after its last activity a target still
// counts as standby rather than offline.
const RecentActivityWindow = 12 * time.Hour

// DeriveStatus computes the display status of a target.
//
// Precedence: an active game always means online. Otherwise the status only
// depends on recency, whether connectivity is reported false, true or not at
// all. Unknown connectivity currently behaves like connected; that is an open
// product question, so each branch is spelled out.
func DeriveStatus(inGame bool, connected *bool, lastActivity *time.Time, now time.Time) Status {
	if inGame {
		return StatusOnline
	}

	recent := lastActivity != nil && now.Sub(*lastActivity) <= RecentActivityWindow

	switch {
	case connected != nil && !*connected:
		return standbyOrOffline(recent)
	case connected != nil && *connected:
		return standbyOrOffline(recent)
	default:
		return standbyOrOffline(recent)
	}
}

// ResolveStatus trusts a valid status derived upstream and only falls back
// to DeriveStatus when the gateway did not provide one.
func ResolveStatus(t Target, now time.Time) Status {
	if t.Status.Valid() {
		return t.Status
	}
	return DeriveStatus(t.InGame(), t.Connected, t.LastActivity, now)
}

func standbyOrOffline(recent bool) Status {
	if recent {
		return StatusStandby
	}
	return StatusOffline
}
