package beaconclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopicRoundTrip(t *testing.T) {
	topics := AllTopics()
	require.Len(t, topics, 16)

	seen := make(map[string]bool)
	for _, topic := range topics {
		tag := topic.String()
		require.False(t, seen[tag], "duplicate tag %s", tag)
		seen[tag] = true

		require.True(t, topic.Valid())
		require.Equal(t, topic, TopicFromString(tag))
		require.Equal(t, tag, TopicFromString(tag).String())
	}
}

func TestTopicFromStringUnknown(t *testing.T) {
	for _, tag := range []string{"", "HEAD", "Head", "head ", "heads", "unknown", "block-gossip", "message"} {
		require.Equal(t, TopicUnknown, TopicFromString(tag), tag)
	}
	require.False(t, TopicUnknown.Valid())
	require.False(t, Topic(-1).Valid())
	require.Equal(t, "unknown", Topic(1000).String())
}

func TestTopicRegistryOrder(t *testing.T) {
	require.Equal(t, []string{
		"head",
		"block",
		"block_gossip",
		"attestation",
		"single_attestation",
		"voluntary_exit",
		"bls_to_execution_change",
		"proposer_slashing",
		"attester_slashing",
		"finalized_checkpoint",
		"chain_reorg",
		"contribution_and_proof",
		"light_client_finality_update",
		"light_client_optimistic_update",
		"payload_attributes",
		"blob_sidecar",
	}, func() []string {
		var tags []string
		for _, topic := range AllTopics() {
			tags = append(tags, topic.String())
		}
		return tags
	}())
}

func TestParseTopics(t *testing.T) {
	topics, err := ParseTopics("head, block,,chain_reorg")
	require.NoError(t, err)
	require.Equal(t, []Topic{TopicHead, TopicBlock, TopicChainReorg}, topics)

	_, err = ParseTopics("head,nope")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = ParseTopics(" , ")
	require.ErrorIs(t, err, ErrInvalidArgument)
}
