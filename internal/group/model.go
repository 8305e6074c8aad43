package group

import (
	"time"

	"github.com/fkhayef/expensesplitter/internal/ledger"
)

// MemberStatus represents the status of a group member
type MemberStatus string

const (
	MemberStatusInvited MemberStatus = "INVITED"
	MemberStatusJoined  MemberStatus = "JOINED"
)

// MemberRole represents the role of a group member
type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "ADMIN"
	MemberRoleMember MemberRole = "MEMBER"
)

// Group is a set of members sharing one ledger in one currency
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Currency    string    `json:"currency"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupMember represents a user's membership in a group. Invited members
// already take part in the ledger.
type GroupMember struct {
	GroupID  string       `json:"group_id"`
	MemberID string       `json:"member_id"`
	Status   MemberStatus `json:"status"`
	Role     MemberRole   `json:"role"`
	JoinedAt time.Time    `json:"joined_at"`

	// Populated from JOIN
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Membership converts a group and its member ids to the ledger's input type
func (g *Group) Membership(memberIDs []string) ledger.GroupMembership {
	return ledger.GroupMembership{
		GroupID:   g.ID,
		Name:      g.Name,
		Currency:  g.Currency,
		MemberIDs: memberIDs,
	}
}
