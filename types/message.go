package types

import "fmt"

// MessageKind discriminates the Message tagged variant.
type MessageKind uint8

// Message kinds. The declaration order is also the sort order, which
// fixes a deterministic action-generation order for the search.
const (
	KindBlockProposal MessageKind = iota + 1
	KindNotarVote
	KindFinalVote
	KindSkipVote
	KindConflictingVote
	KindPartitionEvent
	KindRecoveryMessage
)

// String returns the kind name for logs and counterexample traces.
func (k MessageKind) String() string {
	switch k {
	case KindBlockProposal:
		return "BlockProposal"
	case KindNotarVote:
		return "NotarVote"
	case KindFinalVote:
		return "FinalVote"
	case KindSkipVote:
		return "SkipVote"
	case KindConflictingVote:
		return "ConflictingVote"
	case KindPartitionEvent:
		return "PartitionEvent"
	case KindRecoveryMessage:
		return "RecoveryMessage"
	default:
		return fmt.Sprintf("MessageKind(%d)", uint8(k))
	}
}

// Message is one protocol or adversarial message. Only the fields
// relevant to Kind are set; the rest stay zero so that structural
// equality (==) and the total order below are well defined.
type Message struct {
	Kind      MessageKind
	Slot      Slot
	Hash      BlockHash // BlockProposal, NotarVote, ConflictingVote
	Voter     ValidatorID
	Partition PartitionID   // PartitionEvent, RecoveryMessage
	Members   ValidatorMask // PartitionEvent
}

// NewBlockProposal builds a leader's block proposal message.
func NewBlockProposal(slot Slot, hash BlockHash, proposer ValidatorID) Message {
	return Message{Kind: KindBlockProposal, Slot: slot, Hash: hash, Voter: proposer}
}

// NewNotarVote builds a first-round vote for a block.
func NewNotarVote(slot Slot, hash BlockHash, voter ValidatorID) Message {
	return Message{Kind: KindNotarVote, Slot: slot, Hash: hash, Voter: voter}
}

// NewFinalVote builds a second-round (slow path) finalization vote.
func NewFinalVote(slot Slot, voter ValidatorID) Message {
	return Message{Kind: KindFinalVote, Slot: slot, Voter: voter}
}

// NewSkipVote builds a vote to skip a slot after a timeout.
func NewSkipVote(slot Slot, voter ValidatorID) Message {
	return Message{Kind: KindSkipVote, Slot: slot, Voter: voter}
}

// NewConflictingVote builds a Byzantine vote for a conflicting hash.
func NewConflictingVote(slot Slot, hash BlockHash, voter ValidatorID) Message {
	return Message{Kind: KindConflictingVote, Slot: slot, Hash: hash, Voter: voter}
}

// NewPartitionEvent builds a partition announcement covering members.
func NewPartitionEvent(id PartitionID, members ValidatorMask) Message {
	return Message{Kind: KindPartitionEvent, Partition: id, Members: members}
}

// NewRecoveryMessage builds a partition-heal notice for one validator.
func NewRecoveryMessage(slot Slot, validator ValidatorID, id PartitionID) Message {
	return Message{Kind: KindRecoveryMessage, Slot: slot, Voter: validator, Partition: id}
}

// IsControl reports whether the message manages partition membership
// rather than carrying protocol content. Control messages are delivered
// even to partitioned validators; everything else is held back.
func (m Message) IsControl() bool {
	return m.Kind == KindPartitionEvent || m.Kind == KindRecoveryMessage
}

// Compare defines a total order over messages: by kind, then slot, hash,
// voter, partition, members. Needed for the canonical world encoding and
// for deterministic action generation.
func (m Message) Compare(o Message) int {
	switch {
	case m.Kind != o.Kind:
		return cmpU64(uint64(m.Kind), uint64(o.Kind))
	case m.Slot != o.Slot:
		return cmpU64(m.Slot, o.Slot)
	case m.Hash != o.Hash:
		return cmpU64(m.Hash, o.Hash)
	case m.Voter != o.Voter:
		return cmpInt(m.Voter, o.Voter)
	case m.Partition != o.Partition:
		return cmpU64(m.Partition, o.Partition)
	default:
		return cmpU64(uint64(m.Members), uint64(o.Members))
	}
}

// String renders the message for traces.
func (m Message) String() string {
	switch m.Kind {
	case KindBlockProposal, KindNotarVote, KindConflictingVote:
		return fmt.Sprintf("%s{slot=%d hash=%d from=%d}", m.Kind, m.Slot, m.Hash, m.Voter)
	case KindPartitionEvent:
		return fmt.Sprintf("%s{id=%d members=%v}", m.Kind, m.Partition, m.Members.IDs())
	case KindRecoveryMessage:
		return fmt.Sprintf("%s{id=%d validator=%d}", m.Kind, m.Partition, m.Voter)
	default:
		return fmt.Sprintf("%s{slot=%d from=%d}", m.Kind, m.Slot, m.Voter)
	}
}

// Envelope is a message in transit to a single destination. The network
// holds each envelope at most once; delivery removes it permanently.
type Envelope struct {
	Dst ValidatorID
	Msg Message
}

// Compare orders envelopes by destination, then message order.
func (e Envelope) Compare(o Envelope) int {
	if e.Dst != o.Dst {
		return cmpInt(e.Dst, o.Dst)
	}
	return e.Msg.Compare(o.Msg)
}

// String renders the envelope for traces.
func (e Envelope) String() string {
	return fmt.Sprintf("%s->%d", e.Msg, e.Dst)
}

func cmpU64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
