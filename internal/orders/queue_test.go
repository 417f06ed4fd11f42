package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/orbital/internal/models"
)

// testOrder builds an order handle with a crafted info view, the way the
// queue sees it after completion callbacks ran.
func testOrder(id string, info models.OrderInfo) *TransformationOrder {
	info.ID = id
	return &TransformationOrder{id: id, info: info}
}

func populatedQueue() *Queue {
	q := NewQueue()
	q.AddOrder(testOrder("Id1", models.OrderInfo{
		SubmissionDate:        "2022-01-20T16:27:30.000000",
		CompletedDate:         "2022-01-20T16:27:50.000000",
		InputProductReference: models.InputProductReference{Reference: "product_b"},
	}), "user_1")
	q.AddOrder(testOrder("Id2", models.OrderInfo{
		SubmissionDate:        "2022-01-22T16:27:30.000000",
		CompletedDate:         "2022-01-22T16:37:50.000000",
		InputProductReference: models.InputProductReference{Reference: "product_a"},
	}), "user_1")
	q.AddOrder(testOrder("Id3", models.OrderInfo{
		SubmissionDate:        "2022-02-01T16:27:30.000000",
		InputProductReference: models.InputProductReference{Reference: "product_b"},
	}), "user_2")
	q.AddOrder(testOrder("Id4", models.OrderInfo{
		SubmissionDate:        "2022-02-02T16:27:30.000000",
		InputProductReference: models.InputProductReference{Reference: "product_a"},
	}), "user_2")
	// Id3 is shared: user_3 submitted identical parameters.
	order3, _ := q.Get("Id3")
	q.AddOrder(order3, "user_3")
	return q
}

func TestQueue_IndexesAreMutualInverses(t *testing.T) {
	q := populatedQueue()

	assert.Equal(t, 4, q.Size())
	assert.ElementsMatch(t, []string{"user_2", "user_3"}, q.Users("Id3"))
	assert.True(t, q.UserHasOrder("user_1", "Id1"))
	assert.True(t, q.UserHasOrder("user_3", "Id3"))
	assert.False(t, q.UserHasOrder("user_1", "Id3"))

	// Every order referenced by a user bucket must exist and reference back.
	for _, orderID := range []string{"Id1", "Id2", "Id3", "Id4"} {
		for _, userID := range q.Users(orderID) {
			assert.True(t, q.UserHasOrder(userID, orderID))
		}
	}
}

func TestQueue_RemoveOrder(t *testing.T) {
	q := populatedQueue()

	q.RemoveOrder("Id3")

	assert.Equal(t, 3, q.Size())
	_, ok := q.Get("Id3")
	assert.False(t, ok)
	assert.False(t, q.UserHasOrder("user_2", "Id3"))
	assert.False(t, q.UserHasOrder("user_3", "Id3"))
	assert.Empty(t, q.Users("Id3"))
}

func TestQueue_RemoveOldOrders(t *testing.T) {
	q := populatedQueue()

	keepingPeriod := 10 // minutes
	now := time.Date(2022, 1, 20, 16, 40, 0, 0, time.UTC)
	removed := q.RemoveOldOrders(keepingPeriod, now)

	// Id1 completed at 16:27:50, more than 10 minutes before 16:40. Id2
	// completed two days later; Id3/Id4 have no CompletedDate at all.
	assert.Equal(t, []string{"Id1"}, removed)
	assert.Equal(t, 3, q.Size())
	assert.False(t, q.UserHasOrder("user_1", "Id1"))
	assert.True(t, q.UserHasOrder("user_1", "Id2"))
}

func TestQueue_RemoveOldOrders_NeverEvictsUncompleted(t *testing.T) {
	q := populatedQueue()

	removed := q.RemoveOldOrders(0, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))

	assert.ElementsMatch(t, []string{"Id1", "Id2"}, removed)
	assert.Equal(t, 2, q.Size())
	_, ok := q.Get("Id3")
	assert.True(t, ok)
}

func TestQueue_GetOrders_VisibilityModes(t *testing.T) {
	q := populatedQueue()

	mine, err := q.GetOrders(nil, "user_1", true)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := q.GetOrders(nil, "user_1", false)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := q.GetOrders(nil, "stranger", true)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueue_GetOrders_FilterByCompletedDate(t *testing.T) {
	q := populatedQueue()

	results, err := q.GetOrders([]Filter{
		{Field: "CompletedDate", Op: "gt", Value: "2022-01-22T00:00:00"},
	}, "", false)
	require.NoError(t, err)

	// Only Id2 completed after the bound; in-progress orders are excluded
	// by any CompletedDate predicate.
	require.Len(t, results, 1)
	assert.Equal(t, "Id2", results[0].ID)
}

func TestQueue_GetOrders_FilterConjunction(t *testing.T) {
	q := populatedQueue()

	p := Filter{Field: "InputProductReference", Op: "eq", Value: "product_b"}
	dateBound := Filter{Field: "SubmissionDate", Op: "ge", Value: "2022-02-01T00:00:00"}

	both, err := q.GetOrders([]Filter{p, dateBound}, "", false)
	require.NoError(t, err)

	onlyP, err := q.GetOrders([]Filter{p}, "", false)
	require.NoError(t, err)
	onlyDate, err := q.GetOrders([]Filter{dateBound}, "", false)
	require.NoError(t, err)

	// Conjunction equals the intersection of the single-predicate results.
	ids := func(infos []models.OrderInfo) map[string]bool {
		out := map[string]bool{}
		for _, info := range infos {
			out[info.ID] = true
		}
		return out
	}
	expected := map[string]bool{}
	for id := range ids(onlyP) {
		if ids(onlyDate)[id] {
			expected[id] = true
		}
	}
	assert.Equal(t, expected, ids(both))
	require.Len(t, both, 1)
	assert.Equal(t, "Id3", both[0].ID)
}

func TestQueue_GetOrders_FilterById(t *testing.T) {
	q := populatedQueue()

	results, err := q.GetOrders([]Filter{{Field: "Id", Op: "eq", Value: "Id4"}}, "", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Id4", results[0].ID)
}

func TestQueue_GetOrders_MalformedDateLiteral(t *testing.T) {
	q := populatedQueue()

	_, err := q.GetOrders([]Filter{
		{Field: "CompletedDate", Op: "gt", Value: "not-a-date"},
	}, "", false)

	var requestErr *RequestError
	assert.ErrorAs(t, err, &requestErr)
}

func TestQueue_GetOrders_UnsupportedFieldOrOp(t *testing.T) {
	q := populatedQueue()

	_, err := q.GetOrders([]Filter{{Field: "WorkflowName", Op: "eq", Value: "x"}}, "", false)
	assert.Error(t, err)

	_, err = q.GetOrders([]Filter{{Field: "Id", Op: "gt", Value: "x"}}, "", false)
	assert.Error(t, err)
}
