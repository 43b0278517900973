package script

import (
	"fmt"
	"strings"
)

// DefaultMaxScriptBytes is the build ceiling. The host rejects argument
// lists past roughly this size, so anything larger fails here instead of
// producing a chopped script and a syntax error downstream.
const DefaultMaxScriptBytes = 500_000

// DefaultAppName is the scripting target when the configuration does not
// name one.
const DefaultAppName = "OmniFocus"

// Builder assembles scripts for one application target. It is stateless
// beyond its options and safe for concurrent use.
type Builder struct {
	appName  string
	maxBytes int
}

// NewBuilder returns a Builder for the named application. Zero values fall
// back to DefaultAppName and DefaultMaxScriptBytes.
func NewBuilder(appName string, maxBytes int) *Builder {
	if appName == "" {
		appName = DefaultAppName
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxScriptBytes
	}
	return &Builder{appName: appName, maxBytes: maxBytes}
}

// runner wires the bound values into the operation body and frames
// whatever happens. The framed envelope is the program's completion value,
// which the host prints to stdout.
const runner = `try {
  const __app = Application(__appName);
  const __doc = __app.defaultDocument;
  return __frame({ok: true, data: __op(__app, __doc, __args)});
} catch (e) {
  return __frame(__failFrom(e));
}`

// Build assembles the script for an operation. Parameters are bound as one
// JSON literal on its own line; nothing from params is ever concatenated
// into executable text. Identical inputs produce byte-identical source.
func (b *Builder) Build(opID string, params map[string]interface{}) (Script, error) {
	op, ok := operations[opID]
	if !ok {
		return Script{}, &UnknownOperationError{Op: opID}
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	appLit, err := encodeJS(b.appName)
	if err != nil {
		return Script{}, fmt.Errorf("encoding application name: %w", err)
	}
	argsLit, err := encodeJS(params)
	if err != nil {
		return Script{}, fmt.Errorf("building %s: %w", opID, err)
	}

	var sb strings.Builder
	sb.WriteString("(() => {\n")
	sb.WriteString(tierSource(op.tier))
	sb.WriteString("\n")
	sb.WriteString("const __appName = " + appLit + ";\n")
	sb.WriteString("const __args = " + argsLit + ";\n")
	sb.WriteString("const __op = (app, doc, args) => {\n")
	sb.WriteString(op.body)
	sb.WriteString("\n};\n")
	sb.WriteString(runner)
	sb.WriteString("\n})()\n")

	source := sb.String()
	if len(source) > b.maxBytes {
		return Script{}, &TooLargeError{Op: opID, Size: len(source), Max: b.maxBytes}
	}
	return Script{
		Op:     opID,
		Tier:   op.tier,
		Source: source,
		Size:   len(source),
		Schema: op.schema,
	}, nil
}
