package records

import (
	"math"
	"net/url"
	"strconv"
	"testing"
	"time"
)

func TestPlan_Defaults(t *testing.T) {
	p := NewPlanner(20, 100)
	q, err := p.Plan(url.Values{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Limit != 20 || q.Offset != 0 {
		t.Errorf("expected limit 20 offset 0, got %d/%d", q.Limit, q.Offset)
	}
	if q.OrderBy != ColCreated || q.Order != OrderDesc {
		t.Errorf("expected created desc, got %s %s", q.OrderBy, q.Order)
	}
}

func TestPlan_ClampsPerPage(t *testing.T) {
	p := NewPlanner(20, 100)
	q, err := p.Plan(url.Values{"records_per_page": {"5000"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Limit != 100 {
		t.Errorf("expected limit clamped to 100, got %d", q.Limit)
	}
}

func TestPlan_PagedComputesOffset(t *testing.T) {
	p := NewPlanner(10, 100)
	q, err := p.Plan(url.Values{"paged": {"3"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Offset != 20 {
		t.Errorf("expected offset 20, got %d", q.Offset)
	}
}

func TestPlan_RejectsOverflowingPage(t *testing.T) {
	p := NewPlanner(10, 100)
	_, err := p.Plan(url.Values{"paged": {strconv.Itoa(math.MaxInt)}})
	assertAppError(t, err, 422)
}

func TestPlan_ColumnFilters(t *testing.T) {
	p := NewPlanner(20, 100)
	q, err := p.Plan(url.Values{
		"connector":         {"posts"},
		"action__in":        {"updated, trashed"},
		"user_role__not_in": {"administrator"},
		"record__not_in":    {"4,5"},
		"something_unknown": {"ignored"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := q.In[ColConnector]; len(got) != 1 || got[0] != "posts" {
		t.Errorf("connector filter = %v", got)
	}
	if got := q.In[ColAction]; len(got) != 2 || got[1] != "trashed" {
		t.Errorf("action filter = %v", got)
	}
	if got := q.NotIn[ColUserRole]; len(got) != 1 || got[0] != "administrator" {
		t.Errorf("user_role exclusion = %v", got)
	}
	if len(q.RecordsNotIn) != 2 || q.RecordsNotIn[0] != 4 {
		t.Errorf("record__not_in = %v", q.RecordsNotIn)
	}
}

func TestPlan_RejectsNonNumericID(t *testing.T) {
	p := NewPlanner(20, 100)
	_, err := p.Plan(url.Values{"user_id": {"abc"}})
	assertAppError(t, err, 422)
}

func TestPlan_RejectsBadOrder(t *testing.T) {
	p := NewPlanner(20, 100)
	_, err := p.Plan(url.Values{"order": {"sideways"}})
	assertAppError(t, err, 422)

	_, err = p.Plan(url.Values{"orderby": {"meta"}})
	assertAppError(t, err, 422)
}

func TestPlan_RejectsUnknownField(t *testing.T) {
	p := NewPlanner(20, 100)
	_, err := p.Plan(url.Values{"fields": {"id,nope"}})
	assertAppError(t, err, 422)
}

func TestPlan_SingleDateCoversDay(t *testing.T) {
	p := NewPlanner(20, 100)
	q, err := p.Plan(url.Values{"date": {"2024-03-05"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	from := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if q.DateFrom == nil || !q.DateFrom.Equal(from) {
		t.Errorf("DateFrom = %v, want %v", q.DateFrom, from)
	}
	if q.DateTo == nil || !q.DateTo.Equal(from.AddDate(0, 0, 1)) {
		t.Errorf("DateTo = %v, want next midnight", q.DateTo)
	}
}

func TestPlan_DateToIsInclusiveOfDay(t *testing.T) {
	p := NewPlanner(20, 100)
	q, err := p.Plan(url.Values{"date_from": {"2024-03-01"}, "date_to": {"2024-03-31"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if q.DateTo == nil || !q.DateTo.Equal(want) {
		t.Errorf("DateTo = %v, want %v", q.DateTo, want)
	}
}

func TestPlan_RejectsInvertedRange(t *testing.T) {
	p := NewPlanner(20, 100)
	_, err := p.Plan(url.Values{"date_from": {"2024-03-10"}, "date_to": {"2024-03-01"}})
	assertAppError(t, err, 422)
}

func TestPlan_MetaAndSearch(t *testing.T) {
	p := NewPlanner(20, 100)
	q, err := p.Plan(url.Values{
		"meta_key":     {"post_title"},
		"meta_value":   {"Hello"},
		"search":       {"  draft "},
		"search_field": {"action"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Meta) != 1 || q.Meta[0].Key != "post_title" || q.Meta[0].Value != "Hello" {
		t.Errorf("meta filter = %+v", q.Meta)
	}
	if q.Search != "draft" || q.SearchField != ColAction {
		t.Errorf("search = %q on %q", q.Search, q.SearchField)
	}
}

func TestPlan_ExclusiveDateBounds(t *testing.T) {
	p := NewPlanner(20, 100)
	q, err := p.Plan(url.Values{"date_after": {"2024-03-01"}, "date_before": {"2024-03-10"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC); q.DateFrom == nil || !q.DateFrom.Equal(want) {
		t.Errorf("DateFrom = %v, want %v", q.DateFrom, want)
	}
	if want := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC); q.DateTo == nil || !q.DateTo.Equal(want) {
		t.Errorf("DateTo = %v, want %v", q.DateTo, want)
	}
}
