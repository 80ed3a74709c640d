// File: internal/tools/lint_test.go
package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntaxChecker_ValidJavaScript(t *testing.T) {
	checker := NewSyntaxChecker(true)
	err := checker.Check(context.Background(), "app.js", `
		const counter = document.getElementById("counter");
		let clicks = 0;
		counter.addEventListener("click", () => {
			clicks += 1;
			counter.textContent = String(clicks);
		});
	`)
	assert.NoError(t, err)
}

func TestSyntaxChecker_BrokenJavaScript(t *testing.T) {
	checker := NewSyntaxChecker(true)
	err := checker.Check(context.Background(), "app.js", `function broken( { return }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.js")
}

func TestSyntaxChecker_ValidTypeScript(t *testing.T) {
	checker := NewSyntaxChecker(true)
	err := checker.Check(context.Background(), "server.ts", `
		interface Task { id: number; title: string }
		const tasks: Task[] = [];
		export function add(task: Task): void { tasks.push(task); }
	`)
	assert.NoError(t, err)
}

func TestSyntaxChecker_IgnoresOtherFileTypes(t *testing.T) {
	checker := NewSyntaxChecker(true)
	assert.NoError(t, checker.Check(context.Background(), "index.html", "<html>{{{"))
	assert.NoError(t, checker.Check(context.Background(), "styles.css", "body { color:"))
}

func TestSyntaxChecker_DisabledPassesEverything(t *testing.T) {
	checker := NewSyntaxChecker(false)
	assert.NoError(t, checker.Check(context.Background(), "app.js", "not js at all ((("))
}
