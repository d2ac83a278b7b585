package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysExists(id string) (bool, error) { return true, nil }
func neverExists(id string) (bool, error)  { return false, nil }

func validRequest() *Request {
	return &Request{
		Content:   "the fed raised rates by 25bps",
		Source:    "market",
		SessionID: "s1",
		RequestID: "r1",
	}
}

func TestPreconditionsAcceptsValidObservation(t *testing.T) {
	req := validRequest()
	err := Preconditions(req, time.Now(), alwaysExists)
	require.NoError(t, err)
}

func TestPreconditionsRejectsEmptyContent(t *testing.T) {
	req := validRequest()
	req.Content = "   "
	err := Preconditions(req, time.Now(), alwaysExists)
	assert.Error(t, err)
}

func TestPreconditionsRequiresSourceOrDerivedFrom(t *testing.T) {
	req := validRequest()
	req.Source = ""
	err := Preconditions(req, time.Now(), alwaysExists)
	assert.Error(t, err)

	req.DerivedFrom = []string{"m1"}
	err = Preconditions(req, time.Now(), alwaysExists)
	assert.NoError(t, err)
}

func TestPreconditionsRejectsMissingDerivedFrom(t *testing.T) {
	req := validRequest()
	req.Source = ""
	req.DerivedFrom = []string{"missing"}
	err := Preconditions(req, time.Now(), neverExists)
	assert.Error(t, err)
}

func TestPreconditionsRequiresOutcomeConditionWithResolvesBy(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)
	req := validRequest()
	req.ResolvesBy = &future
	err := Preconditions(req, time.Now(), alwaysExists)
	assert.Error(t, err)

	req.OutcomeCondition = "rates stay above 5%"
	err = Preconditions(req, time.Now(), alwaysExists)
	assert.NoError(t, err)
}

func TestPreconditionsRejectsPastResolvesBy(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	req := validRequest()
	req.ResolvesBy = &past
	req.OutcomeCondition = "something"
	err := Preconditions(req, time.Now(), alwaysExists)
	assert.Error(t, err)
}

func TestKindInference(t *testing.T) {
	obs := validRequest()
	assert.Equal(t, "observation", string(Kind(obs)))

	future := time.Now().Add(time.Hour)
	pred := &Request{ResolvesBy: &future}
	assert.Equal(t, "prediction", string(Kind(pred)))

	thought := &Request{}
	assert.Equal(t, "thought", string(Kind(thought)))
}
