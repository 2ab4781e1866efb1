package cmd

import (
	"bytes"
	"testing"

	"github.com/iksnae/justchat/testutil"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{
			name:    "version flag",
			args:    []string{"--version"},
			wantErr: false,
		},
		{
			name:    "help flag",
			args:    []string{"--help"},
			wantErr: false,
		},
		{
			name:    "unknown command",
			args:    []string{"nonexistent-command"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			rootCmd.SetArgs(tt.args)
			var stdout, stderr bytes.Buffer
			rootCmd.SetOut(&stdout)
			rootCmd.SetErr(&stderr)

			err := rootCmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Errorf("rootCmd.Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && stdout.Len() == 0 {
				t.Error("expected output")
			}
		})
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := []string{"login", "logout", "whoami", "list", "users", "show", "chat", "send", "new", "export", "healthcheck"}
	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("%s command not registered", name)
		}
	}
}

func TestRootCommandWelcomesWhenLoggedOut(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	assertContains(t, out, "Welcome to justchat", "justchat login")
}

func TestRootCommandListsWhenLoggedIn(t *testing.T) {
	env := newTestEnv(t)
	env.fb.AddRecord("conversations", testutil.ConversationRecord("c1", "", false, "u1", "u2"))
	env.login(t)

	out, err := env.run(t, "")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	assertContains(t, out, "1 conversation(s)", "Bob", "c1")
}

func TestInvalidConfigFlag(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.run(t, "", "list", "--transport", "carrier-pigeon"); err == nil {
		t.Error("expected an invalid transport to be rejected")
	}
}
