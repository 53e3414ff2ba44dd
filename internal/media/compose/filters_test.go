package compose

import (
	"errors"
	"strings"
	"testing"

	"storyforge/internal/script"
	"storyforge/internal/services"
)

func TestAtempoChainWithinRange(t *testing.T) {
	chain := atempoChain(1.5)
	if len(chain) != 1 || chain[0] != "atempo=1.5" {
		t.Fatalf("chain = %v", chain)
	}
}

func TestAtempoChainFastClip(t *testing.T) {
	// speed 5.0 needs 2.0 * 2.0 * 1.25
	chain := atempoChain(5.0)
	if len(chain) != 3 {
		t.Fatalf("chain = %v", chain)
	}
	if chain[0] != "atempo=2" || chain[1] != "atempo=2" || chain[2] != "atempo=1.25" {
		t.Fatalf("chain = %v", chain)
	}
}

func TestAtempoChainSlowClip(t *testing.T) {
	// speed 0.3 needs 0.5 * 0.6
	chain := atempoChain(0.3)
	if len(chain) != 2 {
		t.Fatalf("chain = %v", chain)
	}
	if chain[0] != "atempo=0.5" || chain[1] != "atempo=0.6" {
		t.Fatalf("chain = %v", chain)
	}
}

func TestAtempoChainRejectsNonPositive(t *testing.T) {
	if chain := atempoChain(0); chain != nil {
		t.Fatalf("chain = %v", chain)
	}
}

func TestXfadeNameCoversAllKnownTransitions(t *testing.T) {
	expect := map[script.TransitionKind]string{
		script.TransitionFade:        "fade",
		script.TransitionCrossfade:   "dissolve",
		script.TransitionFadeToBlack: "fadeblack",
		script.TransitionSlideLeft:   "slideleft",
		script.TransitionSlideRight:  "slideright",
		script.TransitionZoomIn:      "zoomin",
		script.TransitionZoomOut:     "distance",
	}
	for kind, want := range expect {
		got, ok := xfadeName(kind)
		if !ok || got != want {
			t.Fatalf("xfadeName(%s) = %q, %v; want %q", kind, got, ok, want)
		}
	}
	if _, ok := xfadeName("wipe"); ok {
		t.Fatal("expected unknown transition to report ok=false")
	}
}

func TestClampOverlap(t *testing.T) {
	cases := []struct {
		d, lenA, lenB, want float64
	}{
		{1, 10, 10, 1},
		{6, 10, 10, 5},
		{6, 10, 4, 2},
		{0, 10, 10, 0},
		{-1, 10, 10, 0},
	}
	for _, tc := range cases {
		if got := clampOverlap(tc.d, tc.lenA, tc.lenB); got != tc.want {
			t.Fatalf("clampOverlap(%v, %v, %v) = %v, want %v", tc.d, tc.lenA, tc.lenB, got, tc.want)
		}
	}
}

func TestTransitionGraphOffset(t *testing.T) {
	graph := transitionGraph("fade", 1, 5)
	if !strings.Contains(graph, "xfade=transition=fade:duration=1:offset=4") {
		t.Fatalf("graph = %q", graph)
	}
	if !strings.Contains(graph, "acrossfade=d=1") {
		t.Fatalf("graph = %q", graph)
	}
}

func TestMixGraphFollowsPrimaryDuration(t *testing.T) {
	graph := mixGraph(1, 0.2)
	if !strings.Contains(graph, "amix=inputs=2:duration=first:normalize=0") {
		t.Fatalf("graph = %q", graph)
	}
	if !strings.Contains(graph, "volume=0.2") {
		t.Fatalf("graph = %q", graph)
	}
}

func TestKenBurnsGraphFrameCount(t *testing.T) {
	graph := kenBurnsGraph(1080, 1920, 30, 5)
	if !strings.Contains(graph, "d=150") {
		t.Fatalf("graph = %q", graph)
	}
	if !strings.Contains(graph, "s=1080x1920") {
		t.Fatalf("graph = %q", graph)
	}
}

func TestFormatFloatTrimsTrailingZeros(t *testing.T) {
	cases := map[float64]string{
		1.0:  "1",
		0.75: "0.75",
		2.5:  "2.5",
	}
	for in, want := range cases {
		if got := formatFloat(in); got != want {
			t.Fatalf("formatFloat(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestCompositionErrorClassifiesAsComposition(t *testing.T) {
	err := compositionError(StageStitch, 2, errors.New("xfade failed"))
	if !errors.Is(err, services.ErrComposition) {
		t.Fatalf("expected composition classification, got %v", err)
	}
	var ce *CompositionError
	if !errors.As(err, &ce) {
		t.Fatal("expected *CompositionError")
	}
	if ce.SceneIndex != 2 || ce.Stage != StageStitch {
		t.Fatalf("ce = %+v", ce)
	}
	if !strings.Contains(ce.Error(), "scene 2") {
		t.Fatalf("message = %q", ce.Error())
	}
}

func TestDescribeTransitions(t *testing.T) {
	s := &script.Script{Scenes: []script.Scene{
		{Index: 1, TransitionOut: script.TransitionFade},
		{Index: 2, TransitionOut: script.TransitionSlideLeft},
		{Index: 3},
	}}
	got := DescribeTransitions(s)
	if len(got) != 2 || got[0] != script.TransitionFade || got[1] != script.TransitionSlideLeft {
		t.Fatalf("transitions = %v", got)
	}
	if DescribeTransitions(&script.Script{Scenes: []script.Scene{{Index: 1}}}) != nil {
		t.Fatal("expected nil for single scene")
	}
}
