package supplier

import (
	"fmt"
	"log"
	"sync"
)

// Simulator is an in-memory Service used when simulate mode is enabled.
// Documents queued on it come back on the next job ticket; status reports
// are logged instead of sent.
type Simulator struct {
	account  string
	mu       sync.Mutex
	pending  []Document
	statuses map[string]DocumentStatus
}

func NewSimulator(account string) *Simulator {
	return &Simulator{
		account:  account,
		statuses: make(map[string]DocumentStatus),
	}
}

// Queue adds a document to the next simulated job ticket.
func (s *Simulator) Queue(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, doc)
}

func (s *Simulator) GetJobTicket() (*JobTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.pending
	s.pending = nil

	return &JobTicket{Account: s.account, Documents: docs}, nil
}

func (s *Simulator) ReportDocumentStatus(documentID string, status DocumentStatus, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses[documentID] = status
	log.Printf("[simulate] account %s: document %s -> %s (%s)", s.account, documentID, status, comment)
	return nil
}

// ReportedStatus returns the last status reported for a document.
func (s *Simulator) ReportedStatus(documentID string) (DocumentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[documentID]
	return st, ok
}

func (s *Simulator) DownloadDocument(doc *Document) ([]byte, error) {
	if len(doc.Content) == 0 {
		return nil, Faultf(KindContent, "simulated document %s has no embedded content", doc.ID)
	}
	return doc.Content, nil
}

var _ Service = (*Simulator)(nil)

// String identifies the simulator in logs.
func (s *Simulator) String() string {
	return fmt.Sprintf("simulator(%s)", s.account)
}
