package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse_Stages(t *testing.T) {
	p := Parse(`echo "a|b" | cat`, nil)
	if p == nil {
		t.Fatal("Parse returned nil")
	}
	if len(p.Stages) != 2 {
		t.Fatalf("got %d stages, want 2", len(p.Stages))
	}
	if diff := cmp.Diff([]string{"echo", "a|b"}, p.Stages[0].Args); diff != "" {
		t.Errorf("first stage args (-want+got):\n%v", diff)
	}
	if diff := cmp.Diff([]string{"cat"}, p.Stages[1].Args); diff != "" {
		t.Errorf("second stage args (-want+got):\n%v", diff)
	}
	if p.Background {
		t.Error("pipeline unexpectedly background")
	}
}

func TestParse_NoPipeline(t *testing.T) {
	for _, line := range []string{"", "   ", "\t", "|", " | "} {
		if p := Parse(line, nil); p != nil {
			t.Errorf("Parse(%q) = %+v, want nil", line, p)
		}
	}
}

func TestParse_Background(t *testing.T) {
	p := Parse("sleep 5 &", nil)
	if p == nil || !p.Background {
		t.Fatalf("Parse(sleep 5 &) = %+v, want background pipeline", p)
	}
	if diff := cmp.Diff([]string{"sleep", "5"}, p.Stages[0].Args); diff != "" {
		t.Errorf("args (-want+got):\n%v", diff)
	}

	// A quoted & is not a background marker.
	p = Parse(`echo "x &"`, nil)
	if p == nil || p.Background {
		t.Fatalf("Parse(echo \"x &\") = %+v, want foreground pipeline", p)
	}
}

func TestParse_Redirections(t *testing.T) {
	p := Parse("cmd > out.txt < in.txt", nil)
	if p == nil {
		t.Fatal("Parse returned nil")
	}
	if diff := cmp.Diff([]string{"cmd"}, p.Stages[0].Args); diff != "" {
		t.Errorf("args (-want+got):\n%v", diff)
	}
	want := Redir{In: "in.txt", Out: "out.txt", Append: false}
	if diff := cmp.Diff(want, p.Stages[0].Redir); diff != "" {
		t.Errorf("redir (-want+got):\n%v", diff)
	}
}

func TestParse_LaterRedirectionWins(t *testing.T) {
	p := Parse("cmd > a.txt >> b.txt", nil)
	want := Redir{Out: "b.txt", Append: true}
	if diff := cmp.Diff(want, p.Stages[0].Redir); diff != "" {
		t.Errorf("redir (-want+got):\n%v", diff)
	}
}

func TestParse_DanglingRedirectionIsLiteral(t *testing.T) {
	p := Parse("echo >", nil)
	if diff := cmp.Diff([]string{"echo", ">"}, p.Stages[0].Args); diff != "" {
		t.Errorf("args (-want+got):\n%v", diff)
	}
}

func TestParse_AliasAppliesToFirstStageOnly(t *testing.T) {
	alias := func(args []string) []string {
		if len(args) > 0 && args[0] == "ll" {
			return append([]string{"ls", "-l"}, args[1:]...)
		}
		return args
	}
	p := Parse("ll /tmp | ll", alias)
	if diff := cmp.Diff([]string{"ls", "-l", "/tmp"}, p.Stages[0].Args); diff != "" {
		t.Errorf("first stage (-want+got):\n%v", diff)
	}
	if diff := cmp.Diff([]string{"ll"}, p.Stages[1].Args); diff != "" {
		t.Errorf("second stage (-want+got):\n%v", diff)
	}
}

func TestSplitStages_QuoteTracking(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"a | b | c", []string{"a ", " b ", " c"}},
		{`a "b | c" | d`, []string{`a "b | c" `, ` d`}},
		{`a 'b | c'`, []string{`a 'b | c'`}},
		{"||", nil},
	}
	for _, test := range tests {
		if diff := cmp.Diff(test.want, SplitStages(test.line)); diff != "" {
			t.Errorf("SplitStages(%q) (-want+got):\n%v", test.line, diff)
		}
	}
}

func TestText(t *testing.T) {
	p := Parse("echo  hi | wc -l", nil)
	if got := p.Text(); got != "echo hi | wc -l" {
		t.Errorf("Text() = %q, want %q", got, "echo hi | wc -l")
	}
}

func TestParse_EmptyStageKept(t *testing.T) {
	// The whitespace-only middle stage survives with an empty argument
	// vector; it will simply contribute a zero status when run.
	p := Parse("echo hi |   | wc -c", nil)
	if len(p.Stages) != 3 {
		t.Fatalf("got %d stages, want 3", len(p.Stages))
	}
	if len(p.Stages[1].Args) != 0 {
		t.Errorf("middle stage args = %v, want none", p.Stages[1].Args)
	}
}
