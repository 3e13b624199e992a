package infra

import "testing"

func TestSplitSQL_StripsCommentsAndBlanks(t *testing.T) {
	in := "-- header\nCREATE TABLE a (id INT);\n\n  -- note\nCREATE INDEX b ON a(id);\n"
	stmts := splitSQL(stripSQLComments(in))
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[0] != "CREATE TABLE a (id INT)" {
		t.Errorf("unexpected first statement %q", stmts[0])
	}
}

func TestRepoRoot_FindsGoMod(t *testing.T) {
	root, err := RepoRoot()
	if err != nil {
		t.Fatalf("repo root: %v", err)
	}
	if root == "" {
		t.Fatal("expected non-empty root")
	}
}
