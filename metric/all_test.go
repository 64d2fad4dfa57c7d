// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"testing"

	"relaydrive.io/errors"
)

func TestAll(t *testing.T) {
	saver := &dummySaver{
		done: make(chan bool),
	}
	RegisterSaver(saver)

	m := New("drive.List")
	m.StartSpan("index.Query").StartSpan("unmarshalRecord").End()
	m.StartSpan("blob.Get").End().Done()

	if len(m.spans) != 3 {
		t.Fatalf("Expected 3 spans, got %d", len(m.spans))
	}
	expected := errors.Op("index.Query")
	if m.spans[0].Name != expected {
		t.Errorf("Expected span named %q, got %q", expected, m.spans[0].Name)
	}
	expected = "unmarshalRecord"
	if m.spans[1].Name != expected {
		t.Errorf("Expected span named %q, got %q", expected, m.spans[1].Name)
	}
	if m.spans[1].ParentSpan != m.spans[0] {
		t.Errorf("Expected parent span to be %q, got %v", m.spans[0].Name, m.spans[1].ParentSpan)
	}
	expected = "blob.Get"
	if m.spans[2].Name != expected {
		t.Errorf("Expected span named %q, got %q", expected, m.spans[2].Name)
	}

	// Save one more metric.
	New("drive.CreateFolder").StartSpan("index.Put").End().Done()

	// Finish.
	saveQueue <- nil
	<-saver.done
	close(saver.done)

	if saver.count != 2 {
		t.Fatalf("Expected 2 metrics processed, got %d", saver.count)
	}
}

func TestFullChannel(t *testing.T) {
	for i := 0; i < SaveQueueLength+3; i++ {
		New("drive.CreateFolder").StartSpan("index.Put").End().Done()
	}
	// If we block, this test will never finish.
}

type dummySaver struct {
	count int
	done  chan bool
}

func (d *dummySaver) Register(queue chan *Metric) {
	go func() {
		for {
			select {
			case m := <-queue:
				if m == nil {
					d.done <- true
					return
				}
				d.count++
			}
		}
	}()
}
