package repository

import (
	"strings"

	"bidding-marketplace/internal/ledger"
)

const pathRoot = "artifacts"

// Paths builds the ledger paths of one deployment, namespaced by its app id
type Paths struct {
	AppID string
}

func (p Paths) base() string { return ledger.Join(pathRoot, p.AppID) }

// Users is the profile collection
func (p Paths) Users() string { return ledger.Join(p.base(), "users") }

// User is the profile document of uid
func (p Paths) User(uid string) string { return ledger.Join(p.Users(), uid) }

// Opportunities is the public opportunity collection
func (p Paths) Opportunities() string { return ledger.Join(p.base(), "public", "data", "bidOpportunities") }

// Opportunity is the document of one opportunity
func (p Paths) Opportunity(id string) string { return ledger.Join(p.Opportunities(), id) }

// Bids is the public bid ledger
func (p Paths) Bids() string { return ledger.Join(p.base(), "public", "data", "bids") }

// Bid is the document of one bid
func (p Paths) Bid(id string) string { return ledger.Join(p.Bids(), id) }

// ParseBidPath extracts the app id and bid id from a bid document path of the
// form artifacts/{appId}/public/data/bids/{bidId}. ok is false for any other path.
func ParseBidPath(path string) (appID, bidID string, ok bool) {
	segs := strings.Split(path, "/")
	if len(segs) != 6 || segs[0] != pathRoot || segs[2] != "public" || segs[3] != "data" || segs[4] != "bids" {
		return "", "", false
	}
	if segs[1] == "" || segs[5] == "" {
		return "", "", false
	}
	return segs[1], segs[5], true
}
