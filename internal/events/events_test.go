package events

import "testing"

func TestCollector_ItemIDsUniqueAndIncreasing(t *testing.T) {
	var got []ThreadEvent
	c := NewCollector("thread-1", func(e ThreadEvent) { got = append(got, e) })

	id1 := c.ItemStarted(ItemDetails{Type: DetailsAgentMessage, Text: "hi"})
	id2 := c.ItemStarted(ItemDetails{Type: DetailsReasoning, Text: "thinking"})
	id3 := c.CompletedItem(ItemDetails{Type: DetailsTodoList})

	if id1 == id2 || id2 == id3 || id1 == id3 {
		t.Fatalf("expected unique item ids, got %q, %q, %q", id1, id2, id3)
	}
	if id1 != "item_1" || id2 != "item_2" || id3 != "item_3" {
		t.Fatalf("expected strictly increasing item_N ids, got %q, %q, %q", id1, id2, id3)
	}
}

func TestCollector_ResetForTurnRestartsCounter(t *testing.T) {
	c := NewCollector("thread-1", func(ThreadEvent) {})
	c.ItemStarted(ItemDetails{Type: DetailsAgentMessage})
	c.ItemStarted(ItemDetails{Type: DetailsAgentMessage})
	c.ResetForTurn()
	id := c.ItemStarted(ItemDetails{Type: DetailsAgentMessage})
	if id != "item_1" {
		t.Errorf("expected counter to restart at item_1 after ResetForTurn, got %q", id)
	}
}

func TestCollector_EventsCarryThreadID(t *testing.T) {
	var got []ThreadEvent
	c := NewCollector("thread-42", func(e ThreadEvent) { got = append(got, e) })
	c.ThreadStarted()
	c.TurnStarted()
	for _, e := range got {
		if e.ThreadID != "thread-42" {
			t.Errorf("expected ThreadID=thread-42, got %q", e.ThreadID)
		}
	}
}

func TestCollector_TurnCompletedCarriesLatestUsage(t *testing.T) {
	var got *ThreadEvent
	c := NewCollector("t", func(e ThreadEvent) {
		if e.Kind == KindTurnCompleted {
			got = &e
		}
	})
	c.RecordUsage(Usage{InputTokens: 10, OutputTokens: 5})
	c.RecordUsage(Usage{InputTokens: 20, OutputTokens: 8})
	c.TurnCompleted()

	if got == nil || got.Usage == nil {
		t.Fatalf("expected a turn.completed event carrying usage")
	}
	if got.Usage.InputTokens != 20 || got.Usage.OutputTokens != 8 {
		t.Errorf("expected the latest recorded usage, got %+v", got.Usage)
	}
}

func TestParseReviewOutput_StrictJSON(t *testing.T) {
	out := ParseReviewOutput(`{"verdict":"pass"}`)
	if out.Parsed == nil {
		t.Fatalf("expected strict JSON to parse")
	}
	if out.Parsed["verdict"] != "pass" {
		t.Errorf("expected verdict=pass, got %v", out.Parsed["verdict"])
	}
	if out.OverallExplanation != "" {
		t.Errorf("expected no fallback explanation when strict JSON parses")
	}
}

func TestParseReviewOutput_EmbeddedJSON(t *testing.T) {
	raw := "Here is my verdict: {\"verdict\":\"fail\"} -- see above."
	out := ParseReviewOutput(raw)
	if out.Parsed == nil {
		t.Fatalf("expected the embedded JSON substring to parse")
	}
	if out.Parsed["verdict"] != "fail" {
		t.Errorf("expected verdict=fail, got %v", out.Parsed["verdict"])
	}
}

func TestParseReviewOutput_RawFallback(t *testing.T) {
	raw := "no json here at all"
	out := ParseReviewOutput(raw)
	if out.Parsed != nil {
		t.Fatalf("expected no parsed map for unparseable text, got %+v", out.Parsed)
	}
	if out.OverallExplanation != raw {
		t.Errorf("expected raw text verbatim as OverallExplanation, got %q", out.OverallExplanation)
	}
}
