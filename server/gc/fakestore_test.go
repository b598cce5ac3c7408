package gc

import (
	"context"
	"sync"

	"github.com/tidecore/revgc/server/nodestore"
)

// fakeStore is a minimal in-memory nodestore.DocumentStore used to exercise
// the batcher and collector without a real backing store.
type fakeStore struct {
	mtx       sync.Mutex
	docs      map[string]*nodestore.NodeDocument
	previous  map[string][]string // doc id -> previous doc ids, for non-first-level ranges
	removeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     map[string]*nodestore.NodeDocument{},
		previous: map[string][]string{},
	}
}

func (s *fakeStore) put(doc *nodestore.NodeDocument) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.docs[doc.ID] = doc
}

func (s *fakeStore) Query(_ context.Context, cutoff nodestore.ModifiedBefore) (nodestore.NodeDocumentIterator, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var matches []*nodestore.NodeDocument
	for _, doc := range s.docs {
		if doc.ModifiedInSecs < int64(cutoff) {
			copied := *doc
			matches = append(matches, &copied)
		}
	}
	return &fakeDocIterator{docs: matches}, nil
}

func (s *fakeStore) Find(_ context.Context, id string) (*nodestore.NodeDocument, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeStore) Remove(_ context.Context, conditions map[string]nodestore.ModifiedEquals) (int, error) {
	if s.removeErr != nil {
		return 0, s.removeErr
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	removed := 0
	for id, want := range conditions {
		doc, ok := s.docs[id]
		if !ok {
			continue
		}
		if doc.ModifiedInSecs == int64(want) {
			delete(s.docs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *fakeStore) RemoveAll(_ context.Context, ids []string) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	removed := 0
	for _, id := range ids {
		if _, ok := s.docs[id]; ok {
			delete(s.docs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *fakeStore) AllPreviousDocs(_ context.Context, doc *nodestore.NodeDocument) (nodestore.IDIterator, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	ids := append([]string(nil), s.previous[doc.ID]...)
	return &fakeIDIterator{ids: ids}, nil
}

type fakeDocIterator struct {
	docs []*nodestore.NodeDocument
	pos  int
}

func (it *fakeDocIterator) Next() (*nodestore.NodeDocument, bool, error) {
	if it.pos >= len(it.docs) {
		return nil, false, nil
	}
	doc := it.docs[it.pos]
	it.pos++
	return doc, true, nil
}

func (it *fakeDocIterator) Close() error { return nil }

type fakeIDIterator struct {
	ids []string
	pos int
}

func (it *fakeIDIterator) Next() (string, bool, error) {
	if it.pos >= len(it.ids) {
		return "", false, nil
	}
	id := it.ids[it.pos]
	it.pos++
	return id, true, nil
}

func (it *fakeIDIterator) Close() error { return nil }
