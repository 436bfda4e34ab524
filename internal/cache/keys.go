package cache

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const keyspace = "policyadmin"

// GroupsPrefix is shared by every authorized-groups key.
const GroupsPrefix = keyspace + ":groups:"

func AuthorizedGroupsKey(principalID int64) string {
	return fmt.Sprintf("%s%d", GroupsPrefix, principalID)
}

// ProfilePolicyPrefix covers every cached policy of one profile.
func ProfilePolicyPrefix(profileID int64) string {
	return fmt.Sprintf("%s:policy:%d:", keyspace, profileID)
}

func CompiledPolicyKey(profileID int64, table string) string {
	return ProfilePolicyPrefix(profileID) + strings.ToLower(table)
}

func DeletionTicketKey(ticket uuid.UUID) string {
	return fmt.Sprintf("%s:deletion:%s", keyspace, ticket)
}

func DeletionClaimKey(ticket uuid.UUID) string {
	return DeletionTicketKey(ticket) + ":claim"
}

func RateLimitKey(login string) string {
	return fmt.Sprintf("%s:ratelimit:%s", keyspace, strings.ToLower(login))
}
