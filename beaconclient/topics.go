package beaconclient

import (
	"fmt"
	"strings"
)

// Topic is an event category a beacon node can stream on /eth/v1/events.
type Topic int

const (
	TopicUnknown Topic = iota
	TopicHead
	TopicBlock
	TopicBlockGossip
	TopicAttestation
	TopicSingleAttestation
	TopicVoluntaryExit
	TopicBLSToExecutionChange
	TopicProposerSlashing
	TopicAttesterSlashing
	TopicFinalizedCheckpoint
	TopicChainReorg
	TopicContributionAndProof
	TopicLightClientFinalityUpdate
	TopicLightClientOptimisticUpdate
	TopicPayloadAttributes
	TopicBlobSidecar
)

var topicNames = [...]string{
	TopicUnknown:                     "unknown",
	TopicHead:                        "head",
	TopicBlock:                       "block",
	TopicBlockGossip:                 "block_gossip",
	TopicAttestation:                 "attestation",
	TopicSingleAttestation:           "single_attestation",
	TopicVoluntaryExit:               "voluntary_exit",
	TopicBLSToExecutionChange:        "bls_to_execution_change",
	TopicProposerSlashing:            "proposer_slashing",
	TopicAttesterSlashing:            "attester_slashing",
	TopicFinalizedCheckpoint:         "finalized_checkpoint",
	TopicChainReorg:                  "chain_reorg",
	TopicContributionAndProof:        "contribution_and_proof",
	TopicLightClientFinalityUpdate:   "light_client_finality_update",
	TopicLightClientOptimisticUpdate: "light_client_optimistic_update",
	TopicPayloadAttributes:           "payload_attributes",
	TopicBlobSidecar:                 "blob_sidecar",
}

var topicsByName = func() map[string]Topic {
	m := make(map[string]Topic, len(topicNames)-1)
	for _, t := range AllTopics() {
		m[topicNames[t]] = t
	}
	return m
}()

// AllTopics returns every known topic in registry order.
func AllTopics() []Topic {
	topics := make([]Topic, 0, len(topicNames)-1)
	for t := TopicHead; int(t) < len(topicNames); t++ {
		topics = append(topics, t)
	}
	return topics
}

// TopicFromString returns the topic for the exact wire tag, or TopicUnknown.
func TopicFromString(tag string) Topic {
	if t, ok := topicsByName[tag]; ok {
		return t
	}
	return TopicUnknown
}

// ParseTopics parses a comma separated list of wire tags, e.g. "head,block".
func ParseTopics(s string) ([]Topic, error) {
	var topics []Topic
	for _, tag := range strings.Split(s, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		t := TopicFromString(tag)
		if t == TopicUnknown {
			return nil, fmt.Errorf("%w: unknown topic %q", ErrInvalidArgument, tag)
		}
		topics = append(topics, t)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: no topics in %q", ErrInvalidArgument, s)
	}
	return topics, nil
}

// Valid reports whether t is one of the known topics.
func (t Topic) Valid() bool {
	return t > TopicUnknown && int(t) < len(topicNames)
}

// String returns the wire tag of the topic.
func (t Topic) String() string {
	if t < TopicUnknown || int(t) >= len(topicNames) {
		return topicNames[TopicUnknown]
	}
	return topicNames[t]
}
