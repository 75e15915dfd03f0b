package builtin

import (
	"errors"
	"os"
	"os/user"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"src.elv.sh/pkg/must"
	"src.elv.sh/pkg/testutil"
)

func TestDispatch_UnknownCommand(t *testing.T) {
	ev := NewEnv()
	handled, _ := Dispatch(ev, []string{"ls"}, &strings.Builder{}, &strings.Builder{})
	if handled {
		t.Error("ls was handled as a builtin")
	}
	if handled, _ := Dispatch(ev, nil, &strings.Builder{}, &strings.Builder{}); handled {
		t.Error("empty argv was handled as a builtin")
	}
}

func TestEcho(t *testing.T) {
	var out strings.Builder
	handled, status := Dispatch(NewEnv(), []string{"echo", "a b", "c"}, &out, &strings.Builder{})
	if !handled || status != 0 {
		t.Fatalf("handled, status = %v, %d", handled, status)
	}
	if got, want := out.String(), "a b c\n"; got != want {
		t.Errorf("echo wrote %q, want %q", got, want)
	}
}

func TestCdAndPwd(t *testing.T) {
	testutil.InTempDir(t)
	must.OK(os.Mkdir("sub", 0o700))

	ev := NewEnv()
	if _, status := Dispatch(ev, []string{"cd", "sub"}, &strings.Builder{}, &strings.Builder{}); status != 0 {
		t.Fatalf("cd sub status = %d", status)
	}
	var out strings.Builder
	Dispatch(ev, []string{"pwd"}, &out, &strings.Builder{})
	if got := strings.TrimSuffix(out.String(), "\n"); !strings.HasSuffix(got, "/sub") {
		t.Errorf("pwd = %q, want suffix %q", got, "/sub")
	}

	var errw strings.Builder
	if _, status := Dispatch(ev, []string{"cd", "no-such-dir"}, &strings.Builder{}, &errw); status != 1 {
		t.Errorf("cd no-such-dir status = %d, want 1", status)
	}
	if errw.Len() == 0 {
		t.Error("cd printed no diagnostic")
	}
}

func TestCd_NoArgumentGoesHome(t *testing.T) {
	home := testutil.InTempDir(t)
	testutil.Setenv(t, "HOME", home)

	if _, status := Dispatch(NewEnv(), []string{"cd"}, &strings.Builder{}, &strings.Builder{}); status != 0 {
		t.Fatalf("cd status = %d", status)
	}
	if wd := must.OK1(os.Getwd()); !strings.HasPrefix(wd, home) {
		t.Errorf("cd went to %q, want %q", wd, home)
	}
}

func TestExportAndUnset(t *testing.T) {
	testutil.Unsetenv(t, "MINISH_TEST_VAR")
	ev := NewEnv()

	Dispatch(ev, []string{"export", "MINISH_TEST_VAR=hello"}, &strings.Builder{}, &strings.Builder{})
	if got := os.Getenv("MINISH_TEST_VAR"); got != "hello" {
		t.Errorf("after export, var = %q, want %q", got, "hello")
	}

	var errw strings.Builder
	if _, status := Dispatch(ev, []string{"export", "novalue"}, &strings.Builder{}, &errw); status != 1 {
		t.Errorf("export novalue status = %d, want 1", status)
	}

	Dispatch(ev, []string{"unset", "MINISH_TEST_VAR"}, &strings.Builder{}, &strings.Builder{})
	if _, set := os.LookupEnv("MINISH_TEST_VAR"); set {
		t.Error("var still set after unset")
	}
}

func TestAliasDefineListRemove(t *testing.T) {
	ev := NewEnv()
	Dispatch(ev, []string{"alias", "ll='ls -la'"}, &strings.Builder{}, &strings.Builder{})
	Dispatch(ev, []string{"alias", "g=git"}, &strings.Builder{}, &strings.Builder{})

	var out strings.Builder
	Dispatch(ev, []string{"alias"}, &out, &strings.Builder{})
	want := "alias g='git'\nalias ll='ls -la'\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("alias listing (-want +got):\n%s", diff)
	}

	Dispatch(ev, []string{"unalias", "ll"}, &strings.Builder{}, &strings.Builder{})
	if _, ok := ev.Aliases["ll"]; ok {
		t.Error("ll still defined after unalias")
	}
}

func TestTrueFalse(t *testing.T) {
	ev := NewEnv()
	if _, status := Dispatch(ev, []string{"true"}, nil, nil); status != 0 {
		t.Errorf("true status = %d", status)
	}
	if _, status := Dispatch(ev, []string{"false"}, nil, nil); status != 1 {
		t.Errorf("false status = %d", status)
	}
}

func TestTryAutoCd(t *testing.T) {
	testutil.InTempDir(t)
	must.OK(os.Mkdir("sub", 0o700))
	must.OK(os.WriteFile("file", nil, 0o644))

	if !TryAutoCd([]string{"sub"}) {
		t.Error("autocd refused a directory")
	}
	if TryAutoCd([]string{"file"}) {
		t.Error("autocd accepted a plain file")
	}
	if TryAutoCd([]string{"sub", "extra"}) {
		t.Error("autocd accepted a multi-word line")
	}
}

func TestExpand(t *testing.T) {
	ev := NewEnv()
	ev.Aliases["ll"] = "ls -la"
	ev.Aliases["g"] = "git"
	ev.Aliases["co"] = "g checkout"
	ev.Aliases["ls"] = "ls -F"
	ev.Aliases["x"] = "y"
	ev.Aliases["y"] = "x"

	tests := []struct {
		args []string
		want []string
	}{
		{[]string{"ll", "dir"}, []string{"ls", "-la", "dir"}},
		{[]string{"co", "main"}, []string{"git", "checkout", "main"}},
		// A self-referential alias expands once and stops.
		{[]string{"ls"}, []string{"ls", "-F"}},
		{[]string{"plain"}, []string{"plain"}},
		{nil, nil},
	}
	for _, test := range tests {
		if got := ev.Expand(test.args); !cmp.Equal(test.want, got) {
			t.Errorf("Expand(%v) = %v, want %v", test.args, got, test.want)
		}
	}

	// Mutually recursive aliases terminate at the depth bound.
	got := ev.Expand([]string{"x"})
	if len(got) != 1 {
		t.Errorf("Expand(x) = %v, want one word", got)
	}
}

func TestEvalRCLine(t *testing.T) {
	testutil.Unsetenv(t, "MINISH_PROMPT")
	ev := NewEnv()
	var out strings.Builder

	EvalRCLine(ev, "# a comment", &out)
	EvalRCLine(ev, "", &out)
	EvalRCLine(ev, "alias ll='ls -la'  # trailing comment", &out)
	EvalRCLine(ev, "export MINISH_RC_VAR=42", &out)
	EvalRCLine(ev, `echo "welcome"`, &out)
	EvalRCLine(ev, "setprompt '> '", &out)

	if got := ev.Aliases["ll"]; got != "ls -la" {
		t.Errorf("alias body = %q, want %q", got, "ls -la")
	}
	if got := os.Getenv("MINISH_RC_VAR"); got != "42" {
		t.Errorf("exported var = %q, want %q", got, "42")
	}
	testutil.Unsetenv(t, "MINISH_RC_VAR")
	if got := out.String(); got != "welcome\n" {
		t.Errorf("echo wrote %q, want %q", got, "welcome\n")
	}
	if got := os.Getenv("MINISH_PROMPT"); got != "> " {
		t.Errorf("prompt override = %q, want %q", got, "> ")
	}
}

func TestSource(t *testing.T) {
	testutil.InTempDir(t)
	must.OK(os.WriteFile("rc", []byte("alias b=build\n# nothing\n"), 0o644))

	ev := NewEnv()
	if _, status := Dispatch(ev, []string{"source", "rc"}, &strings.Builder{}, &strings.Builder{}); status != 0 {
		t.Fatalf("source rc status = %d", status)
	}
	if got := ev.Aliases["b"]; got != "build" {
		t.Errorf("alias body = %q, want %q", got, "build")
	}

	var errw strings.Builder
	if _, status := Dispatch(ev, []string{".", "missing-rc"}, &strings.Builder{}, &errw); status != 1 {
		t.Errorf(". missing-rc status = %d, want 1", status)
	}
}

func TestLoadRC(t *testing.T) {
	home := testutil.InTempDir(t)
	testutil.Setenv(t, "HOME", home)
	must.OK(os.WriteFile(RCName, []byte("alias up='cd ..'\n"), 0o644))

	ev := NewEnv()
	LoadRC(ev, &strings.Builder{})
	if got := ev.Aliases["up"]; got != "cd .." {
		t.Errorf("alias body = %q, want %q", got, "cd ..")
	}

	// A missing rc file is silently skipped.
	testutil.Setenv(t, "HOME", home+"/nowhere")
	LoadRC(NewEnv(), &strings.Builder{})
}

func TestHomeDir_Fallbacks(t *testing.T) {
	testutil.Setenv(t, "HOME", "/tmp/h")
	if got := HomeDir(); got != "/tmp/h" {
		t.Errorf("HomeDir = %q, want /tmp/h", got)
	}

	testutil.Setenv(t, "HOME", "")
	restore := userCurrent
	defer func() { userCurrent = restore }()
	userCurrent = func() (*user.User, error) { return &user.User{HomeDir: "/tmp/u"}, nil }
	if got := HomeDir(); got != "/tmp/u" {
		t.Errorf("HomeDir = %q, want /tmp/u", got)
	}

	userCurrent = func() (*user.User, error) { return nil, errors.New("no user database") }
	if got := HomeDir(); got != "/" {
		t.Errorf("HomeDir = %q, want /", got)
	}
}
