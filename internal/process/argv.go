package process

import (
	"strings"

	"golang.org/x/sys/unix"
)

// execParams is the flattened form of a path, its arguments and an
// optional environment, laid out for execve. All strings live in buf,
// NUL-terminated; ptrs holds argv entries, nil, then (when hasEnv)
// envp entries and a final nil.
type execParams struct {
	buf    []byte
	ptrs   []*byte
	argc   int
	hasEnv bool
}

// marshalExec flattens path, args and env. A nil env means the child
// inherits the environment and no envp table is built. Strings with
// embedded NUL bytes are rejected with EINVAL.
func marshalExec(path string, args, env []string) (*execParams, error) {
	p := &execParams{
		argc:   1 + len(args),
		hasEnv: env != nil,
	}

	offsets := make([]int, 0, p.argc+len(env))
	add := func(s string) error {
		if strings.IndexByte(s, 0) >= 0 {
			return unix.EINVAL
		}
		offsets = append(offsets, len(p.buf))
		p.buf = append(p.buf, s...)
		p.buf = append(p.buf, 0)
		return nil
	}

	if err := add(path); err != nil {
		return nil, err
	}
	for _, a := range args {
		if err := add(a); err != nil {
			return nil, err
		}
	}
	for _, kv := range env {
		if err := add(kv); err != nil {
			return nil, err
		}
	}

	// Appending may have moved buf, so addresses are only taken once it
	// is final.
	p.ptrs = make([]*byte, 0, len(offsets)+2)
	for _, off := range offsets[:p.argc] {
		p.ptrs = append(p.ptrs, &p.buf[off])
	}
	p.ptrs = append(p.ptrs, nil)
	if p.hasEnv {
		for _, off := range offsets[p.argc:] {
			p.ptrs = append(p.ptrs, &p.buf[off])
		}
		p.ptrs = append(p.ptrs, nil)
	}
	return p, nil
}

// path returns the NUL-terminated program path, which is also argv[0].
func (p *execParams) path() *byte { return p.ptrs[0] }

// argv returns the nil-terminated argument table.
func (p *execParams) argv() []*byte { return p.ptrs[:p.argc+1] }

// envv returns the nil-terminated environment table, or nil when the
// environment is inherited.
func (p *execParams) envv() []*byte {
	if !p.hasEnv {
		return nil
	}
	return p.ptrs[p.argc+1:]
}

// strings decodes the tables back into Go strings.
func (p *execParams) strings() (argv, envv []string) {
	decode := func(tab []*byte) []string {
		var out []string
		for _, ptr := range tab {
			if ptr == nil {
				break
			}
			out = append(out, unix.BytePtrToString(ptr))
		}
		return out
	}
	argv = decode(p.argv())
	if p.hasEnv {
		envv = decode(p.envv())
	}
	return argv, envv
}
