package changelog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash"

	"github.com/lockplane/changeplane/internal/change"
)

// ChecksumPrefix versions the checksum format
const ChecksumPrefix = "x1:"

// AnyChecksum in ValidCheckSums accepts every recorded checksum
const AnyChecksum = "ANY"

// Checksum hashes the semantic content of the changeset: each statement's
// type tag and canonical form, in order. Identity, run policy and
// applicability attributes are excluded, so moving a changeset between
// contexts does not register as drift.
func (c *ChangeSet) Checksum() (string, error) {
	h := xxhash.New()
	for _, stmt := range c.Statements {
		body, err := canonicalForm(stmt)
		if err != nil {
			return "", fmt.Errorf("failed to checksum %s: %w", c, err)
		}
		_, _ = h.Write([]byte(stmt.Type()))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(body)
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%s%016x", ChecksumPrefix, h.Sum64()), nil
}

func canonicalForm(stmt change.Statement) ([]byte, error) {
	if c, ok := stmt.(change.Canonicalizer); ok {
		opts, err := json.Marshal(struct {
			ContinueOnError bool `json:"continue_on_error"`
		}{stmt.ContinueOnError()})
		if err != nil {
			return nil, err
		}
		return append([]byte(c.CanonicalForm()), opts...), nil
	}
	return json.Marshal(stmt)
}

// ChecksumMatches reports whether a recorded checksum is acceptable for the
// changeset: equal to the computed one, or listed in ValidCheckSums.
func (c *ChangeSet) ChecksumMatches(recorded string) (bool, error) {
	current, err := c.Checksum()
	if err != nil {
		return false, err
	}
	if recorded == "" || strings.EqualFold(current, recorded) {
		return true, nil
	}
	for _, valid := range c.ValidCheckSums {
		if strings.EqualFold(valid, AnyChecksum) || strings.EqualFold(strings.TrimSpace(valid), recorded) {
			return true, nil
		}
	}
	return false, nil
}
