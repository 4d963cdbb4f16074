package treetar_test

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/jaddr2line/treetar"
)

func Example_minimal() {
	// Write a small tree to a stream.
	var buf bytes.Buffer
	w := treetar.NewWriter(&buf, treetar.WriterOptions{})
	mtime := time.Unix(1600000000, 0)
	if err := w.Directory("greetings", treetar.Metadata{Mode: 0755, ModTime: mtime}); err != nil {
		log.Fatal(err)
	}
	var files = []struct {
		Name, Body string
	}{
		{"greetings/hello.txt", "Hello World!"},
		{"greetings/smile.txt", "☺"},
	}
	for _, file := range files {
		md := treetar.Metadata{Mode: 0644, Size: int64(len(file.Body)), ModTime: mtime}
		if _, err := w.File(file.Name, md, strings.NewReader(file.Body)); err != nil {
			log.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		log.Fatal(err)
	}

	// Read entries back out of the stream.
	r, err := treetar.NewReader(&buf)
	if err != nil {
		log.Fatal(err)
	}
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal(err)
		}
		if e.IsDir() {
			fmt.Printf("Directory %q (%v)\n", e.Name, e.Metadata.Mode)
			continue
		}
		dat, err := io.ReadAll(e)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("File %q: %s\n", e.Name, string(dat))
	}

	// Output:
	// Directory "greetings" (-rwxr-xr-x)
	// File "greetings/hello.txt": Hello World!
	// File "greetings/smile.txt": ☺
}
