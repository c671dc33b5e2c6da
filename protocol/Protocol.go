// Package protocol defines the message tags and payloads exchanged
// between actors, the policy authority and remote policy hosts
package protocol

import (
	"github.com/samuelfneumann/distlearn/experience"
	"github.com/samuelfneumann/distlearn/policy"
)

// Actor to authority
const (
	// TagGetInitialPolicyState requests the current version and the
	// state of every policy. The request has no body.
	TagGetInitialPolicyState = "get_initial_policy_state"

	// TagCollectDone delivers the experience of one segment and asks for
	// the policies that changed since the reported version
	TagCollectDone = "collect_done"

	// TagDone notifies the authority that an actor finished its run
	TagDone = "done"
)

// Authority to policy host
const (
	TagListPolicies        = "list_policies"
	TagSubmitExperiences   = "submit_experiences"
	TagPullPolicyState     = "pull_policy_state"
	TagPullAllPolicyStates = "pull_all_policy_states"
)

// InitialStateReply answers TagGetInitialPolicyState
type InitialStateReply struct {
	Version     int64                   `json:"version"`
	PolicyState map[string]policy.State `json:"policy_state"`
}

// CollectDoneRequest is the body of TagCollectDone. Version is the
// version the experience was generated under.
type CollectDoneRequest struct {
	Experiences map[string]experience.Batch `json:"experiences"`
	Version     int64                       `json:"version"`
}

// CollectDoneReply answers TagCollectDone with the latest version and
// the policies that changed after the version of the request
type CollectDoneReply struct {
	Version     int64                   `json:"version"`
	PolicyState map[string]policy.State `json:"policy_state"`
}

// ListPoliciesReply answers TagListPolicies
type ListPoliciesReply struct {
	Names []string `json:"names"`
}

// SubmitExperiencesRequest is the body of TagSubmitExperiences
type SubmitExperiencesRequest struct {
	Experiences map[string]experience.Batch `json:"experiences"`
}

// PullPolicyStateRequest is the body of TagPullPolicyState. Ack is the
// Seq of the last reply the puller received; states of later replies
// are sent again until they are acknowledged.
type PullPolicyStateRequest struct {
	Ack int64 `json:"ack"`
}

// PolicyStateReply answers TagPullPolicyState and
// TagPullAllPolicyStates. Seq numbers the replies to TagPullPolicyState.
type PolicyStateReply struct {
	Seq         int64                   `json:"seq,omitempty"`
	PolicyState map[string]policy.State `json:"policy_state"`
}
