package supplier

// DocumentStatus is the supplier's status vocabulary. The supplier treats a
// repeated report of the same terminal status as a no-op.
type DocumentStatus string

const (
	StatusCompleted DocumentStatus = "COMPLETED"
	StatusCancelled DocumentStatus = "CANCELLED"
	StatusError     DocumentStatus = "ERROR"
)

// MediaSize is the physical-media attribute used for chunk boundaries and
// printer capability checks.
type MediaSize string

const (
	MediaA4 MediaSize = "A4"
	MediaA3 MediaSize = "A3"
)

// BillingEntry describes who is charged for how many copies of a document.
// The username may be absent for a non-individual entry; the group tag is
// required when the role implies group membership.
type BillingEntry struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Group    string `json:"group"`
	Copies   int    `json:"copies"`
	Extra    int    `json:"extra"`
}

// Document is one pending print document from a job ticket. It exists only
// for the duration of one poll/process cycle.
type Document struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Comment   string         `json:"comment"`
	Requester string         `json:"requester"`
	Media     MediaSize      `json:"media"`
	Duplex    bool           `json:"duplex"`
	Grayscale bool           `json:"grayscale"`
	Pages     int            `json:"pages"`
	Selection string         `json:"selection"`
	Billing   []BillingEntry `json:"billing"`

	// Content is the embedded payload; when empty the document is fetched
	// from ContentURL instead. Checksum is the hex SHA-256 of the payload.
	Content    []byte `json:"content,omitempty"`
	ContentURL string `json:"content_url,omitempty"`
	Checksum   string `json:"checksum"`
}

type JobTicket struct {
	Account   string     `json:"account"`
	Documents []Document `json:"documents"`
}

// Service is the supplier RPC transport. The HTTP client and the simulator
// both implement it; a Connection wraps one of them.
type Service interface {
	GetJobTicket() (*JobTicket, error)
	ReportDocumentStatus(documentID string, status DocumentStatus, comment string) error
	DownloadDocument(doc *Document) ([]byte, error)
}
