package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/oxidize/pkg/validate"
)

// crateWriter places generated code inside the target crate and keeps the
// module tree registered in lib.rs.
type crateWriter struct {
	crateDir  string
	crateName string
	hasMain   bool

	// undo holds the prior contents of every file touched since the last
	// Accept. A nil value marks a file that did not exist. Reverting between
	// fix attempts keeps a failed attempt's code from accumulating.
	undo map[string][]byte
}

// EnsureSkeleton creates the minimal crate layout when the crate directory
// does not exist yet: Cargo.toml, src/lib.rs, and the binary entry when the
// source project has one. An existing crate is left untouched.
func (w *crateWriter) EnsureSkeleton() error {
	_, err := os.Stat(filepath.Join(w.crateDir, "Cargo.toml"))
	if err == nil {
		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("stat Cargo.toml: %w", err)
	}

	err = os.MkdirAll(filepath.Join(w.crateDir, "src"), 0o755)
	if err != nil {
		return fmt.Errorf("create crate src dir: %w", err)
	}

	manifest := fmt.Sprintf("[package]\nname = %q\nversion = \"0.1.0\"\nedition = \"2021\"\n", w.crateName)

	err = os.WriteFile(filepath.Join(w.crateDir, "Cargo.toml"), []byte(manifest), 0o644)
	if err != nil {
		return fmt.Errorf("write Cargo.toml: %w", err)
	}

	err = os.WriteFile(filepath.Join(w.crateDir, "src", "lib.rs"), []byte("// Generated crate root.\n"), 0o644)
	if err != nil {
		return fmt.Errorf("write lib.rs: %w", err)
	}

	if w.hasMain {
		binPath := filepath.Join(w.crateDir, "src", "bin")

		err = os.MkdirAll(binPath, 0o755)
		if err != nil {
			return fmt.Errorf("create bin dir: %w", err)
		}

		stub := fmt.Sprintf("fn main() {\n    %s::run();\n}\n", strings.ReplaceAll(w.crateName, "-", "_"))

		err = os.WriteFile(filepath.Join(binPath, w.crateName+".rs"), []byte(stub), 0o644)
		if err != nil {
			return fmt.Errorf("write binary entry: %w", err)
		}
	}

	return nil
}

// Precheck validates the crate layout before any unit is written.
func (w *crateWriter) Precheck() (validate.StructureResult, error) {
	return validate.CheckCrateDir(w.crateDir, w.crateName, w.hasMain)
}

// modulePath maps a plan module to its file under the crate.
func (w *crateWriter) modulePath(module string) string {
	return filepath.Join(w.crateDir, "src", filepath.FromSlash(module)+".rs")
}

// snapshot records a file's current contents before the first write touches
// it. Later writes to the same file keep the original snapshot.
func (w *crateWriter) snapshot(path string) error {
	if w.undo == nil {
		w.undo = make(map[string][]byte)
	}

	if _, seen := w.undo[path]; seen {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("snapshot %s: %w", path, err)
		}

		w.undo[path] = nil

		return nil
	}

	w.undo[path] = content

	return nil
}

// Revert restores every file touched since the last Accept, removing files
// that did not exist before, and clears the undo log. A no-op when nothing
// was written.
func (w *crateWriter) Revert() error {
	for path, content := range w.undo {
		if content == nil {
			err := os.Remove(path)
			if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("revert %s: %w", path, err)
			}

			continue
		}

		err := os.WriteFile(path, content, 0o644)
		if err != nil {
			return fmt.Errorf("revert %s: %w", path, err)
		}
	}

	w.undo = nil

	return nil
}

// Accept drops the undo log once the written unit has validated.
func (w *crateWriter) Accept() {
	w.undo = nil
}

// Write appends the unit's code to its module file, creating the file and
// registering the module chain in lib.rs as needed. Returns a unified-style
// preview of the change.
func (w *crateWriter) Write(plan *Plan) (string, error) {
	path := w.modulePath(plan.Module)

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return "", fmt.Errorf("create module dir: %w", err)
	}

	err = w.snapshot(path)
	if err != nil {
		return "", err
	}

	before := ""

	existing, err := os.ReadFile(path)
	if err == nil {
		before = string(existing)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read module file: %w", err)
	}

	after := before
	if after != "" && !strings.HasSuffix(after, "\n") {
		after += "\n"
	}

	if after != "" {
		after += "\n"
	}

	after += strings.TrimRight(plan.Code, "\n") + "\n"

	err = os.WriteFile(path, []byte(after), 0o644)
	if err != nil {
		return "", fmt.Errorf("write module file: %w", err)
	}

	err = w.registerModule(plan.Module)
	if err != nil {
		return "", err
	}

	return Preview(before, after), nil
}

// registerModule makes sure every segment of the module path is declared:
// the top-level one in lib.rs, nested ones in their parent's mod.rs or file.
func (w *crateWriter) registerModule(module string) error {
	segments := strings.Split(module, "/")

	parent := filepath.Join(w.crateDir, "src", "lib.rs")
	dir := filepath.Join(w.crateDir, "src")

	for i, segment := range segments {
		err := w.declareMod(parent, segment)
		if err != nil {
			return err
		}

		if i == len(segments)-1 {
			break
		}

		dir = filepath.Join(dir, segment)
		parent = filepath.Join(dir, "mod.rs")
	}

	return nil
}

// declareMod appends a pub mod line to file unless one already exists.
func (w *crateWriter) declareMod(file, name string) error {
	decl := "pub mod " + name + ";"

	content, err := os.ReadFile(file)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", file, err)
	}

	for _, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == decl || trimmed == "mod "+name+";" {
			return nil
		}
	}

	snapErr := w.snapshot(file)
	if snapErr != nil {
		return snapErr
	}

	updated := string(content)
	if updated != "" && !strings.HasSuffix(updated, "\n") {
		updated += "\n"
	}

	updated += decl + "\n"

	mkdirErr := os.MkdirAll(filepath.Dir(file), 0o755)
	if mkdirErr != nil {
		return fmt.Errorf("create module dir: %w", mkdirErr)
	}

	err = os.WriteFile(file, []byte(updated), 0o644)
	if err != nil {
		return fmt.Errorf("update %s: %w", file, err)
	}

	return nil
}

// Preview renders a compact line diff between two file states.
func Preview(before, after string) string {
	dmp := diffmatchpatch.New()

	runes1, runes2, lines := dmp.DiffLinesToRunes(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(runes1, runes2, false), lines)

	var b strings.Builder

	for _, diff := range diffs {
		prefix := " "

		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffEqual:
			continue
		}

		for _, line := range strings.Split(strings.TrimRight(diff.Text, "\n"), "\n") {
			b.WriteString(prefix)
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return b.String()
}
