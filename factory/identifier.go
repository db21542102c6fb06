package factory

import "github.com/google/uuid"

// FormatPickleID renders id in canonical form: 36 lowercase characters
// grouped 8-4-4-4-12. Every UUID, including the nil UUID, is accepted.
func FormatPickleID(id uuid.UUID) string {
	return id.String()
}

// ParsePickleID parses any textual UUID form uuid.Parse accepts (upper case,
// braces, urn:uuid: prefix, no hyphens). Malformed input yields a *Failure of
// kind FailureInvalidIdentifier.
func ParsePickleID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &Failure{
			Kind:   FailureInvalidIdentifier,
			Field:  "pickleId",
			Reason: err.Error(),
		}
	}
	return id, nil
}
