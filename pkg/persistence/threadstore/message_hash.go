package threadstore

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/go-go-golems/threadchat/pkg/conversation"
)

// MessageContentHashAlgorithmV2 identifies the canonical hash material/version.
//
// The material is the raw role and content bytes, each prefixed with its
// length. Content is not required to be valid UTF-8, so no text encoding may
// sit between the message and the digest. Identical messages share one row in
// the messages table no matter how many checkpoints use them.
const MessageContentHashAlgorithmV2 = "sha256-length-prefixed-v2"

// CanonicalMessageMaterial returns the bytes used for message hashing.
func CanonicalMessageMaterial(m conversation.Message) []byte {
	role, content := []byte(m.Role), []byte(m.Content)
	b := make([]byte, 0, 2*binary.MaxVarintLen64+len(role)+len(content))
	b = binary.AppendUvarint(b, uint64(len(role)))
	b = append(b, role...)
	b = binary.AppendUvarint(b, uint64(len(content)))
	b = append(b, content...)
	return b
}

// ComputeMessageContentHash computes the lowercase-hex SHA-256 hash over canonical message material.
func ComputeMessageContentHash(m conversation.Message) (string, error) {
	sum := sha256.Sum256(CanonicalMessageMaterial(m))
	return hex.EncodeToString(sum[:]), nil
}
