package vm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ---------------------------------------------------------------------------
// Text I/O primitives
// ---------------------------------------------------------------------------

const textFileType = "textio.File"

type textFile struct {
	path string
	f    *os.File
	r    *bufio.Reader
	w    *bufio.Writer
}

func (tf *textFile) close() error {
	var err error
	if tf.w != nil {
		err = tf.w.Flush()
	}
	if cerr := tf.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// popObject pops an Object of the given type. The returned Value still
// holds the popped reference; callers release it when done.
func popObject(s *Stack, typ string) (*Object, Value, error) {
	v := s.Pop()
	if v.Kind() != KindObject || v.Object() == nil {
		v.Release()
		return nil, Nothing, Raise(ExcInvalidValue, fmt.Sprintf("expected %s, found %s", typ, v.Kind()))
	}
	o := v.Object()
	if o.Type != typ {
		v.Release()
		return nil, Nothing, Raise(ExcInvalidValue, fmt.Sprintf("expected %s, found %s", typ, o.Type))
	}
	if o.Closed() {
		v.Release()
		return nil, Nothing, Raise(ExcObjectClosed, o.String())
	}
	return o, v, nil
}

func openTextFile(path, mode string) (*textFile, error) {
	var flag int
	switch mode {
	case "r", "read":
		flag = os.O_RDONLY
	case "w", "write":
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case "a", "append":
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	default:
		return nil, Raise(ExcValueRange, "unknown open mode: "+mode)
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fileError(err, path)
	}
	tf := &textFile{path: path, f: f}
	if flag == os.O_RDONLY {
		tf.r = bufio.NewReader(f)
	} else {
		tf.w = bufio.NewWriter(f)
	}
	return tf, nil
}

func registerTextioPrimitives(t *BuiltinTable) {
	// open: path, mode - File handle; mode is "r", "w" or "a"
	t.add("textio$open", 2, 1, func(ex *Executor) error {
		mode := ex.stack.PopString()
		path := ex.stack.PopString()
		tf, err := openTextFile(path, mode)
		if err != nil {
			return err
		}
		o := NewObjectHandle(textFileType, tf,
			func(h any) {
				if err := h.(*textFile).close(); err != nil {
					log.Warningf("closing %s: %v", h.(*textFile).path, err)
				}
			},
			func(h any) string { return "<textio.File " + h.(*textFile).path + ">" })
		ex.stack.Push(NewObject(o))
		return nil
	})

	t.add("textio$close", 1, 0, func(ex *Executor) error {
		o, v, err := popObject(ex.stack, textFileType)
		if err != nil {
			return err
		}
		o.Close()
		v.Release()
		return nil
	})

	// readLine: f - (line, ok); ok is FALSE at end of file
	t.add("textio$readLine", 1, 2, func(ex *Executor) error {
		o, v, err := popObject(ex.stack, textFileType)
		if err != nil {
			return err
		}
		defer v.Release()
		tf := o.Handle.(*textFile)
		if tf.r == nil {
			return Raise(ExcFileIO, tf.path+": not open for reading")
		}
		line, err := tf.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return Raise(ExcFileIO, tf.path+": "+err.Error())
		}
		if err == io.EOF && line == "" {
			ex.stack.Push(NewString(""))
			ex.stack.Push(NewBoolean(false))
			return nil
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		ex.stack.Push(NewString(line))
		ex.stack.Push(NewBoolean(true))
		return nil
	})

	t.add("textio$writeLine", 2, 0, func(ex *Executor) error {
		s := ex.stack.PopString()
		o, v, err := popObject(ex.stack, textFileType)
		if err != nil {
			return err
		}
		defer v.Release()
		tf := o.Handle.(*textFile)
		if tf.w == nil {
			return Raise(ExcFileIO, tf.path+": not open for writing")
		}
		if _, err := tf.w.WriteString(s + "\n"); err != nil {
			return Raise(ExcFileIO, tf.path+": "+err.Error())
		}
		return nil
	})

	// input: prompt - line; the prompt goes to the executor output and the
	// line is read from its input. Raises EndOfFileException once input is
	// exhausted.
	t.add("textio$input", 1, 1, func(ex *Executor) error {
		prompt := ex.stack.PopString()
		if _, err := io.WriteString(ex.out, prompt); err != nil {
			return Raise(ExcFileIO, err.Error())
		}
		line, err := ex.in.ReadString('\n')
		if err == io.EOF && line == "" {
			return Raise(ExcEndOfFile, "")
		}
		if err != nil && err != io.EOF {
			return Raise(ExcFileIO, err.Error())
		}
		ex.stack.Push(NewString(strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")))
		return nil
	})

	// writeStdout: s - Write s to the executor output, no newline
	t.add("textio$writeStdout", 1, 0, func(ex *Executor) error {
		s := ex.stack.PopString()
		if _, err := io.WriteString(ex.out, s); err != nil {
			return Raise(ExcFileIO, err.Error())
		}
		return nil
	})
}
