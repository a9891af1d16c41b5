// Package domain defines the persistence models for goods receipts, issue
// tickets, device tokens, and notification records. These types are mapped
// with GORM and form the core data layer of the fulfillment backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// ReceiptStatus is the lifecycle status of a GoodsReceipt. A receipt starts
// PENDING_VERIFICATION and transitions exactly once to one of the terminal
// states when the verification event is processed.
type ReceiptStatus string

const (
	ReceiptStatusPending  ReceiptStatus = "PENDING_VERIFICATION"
	ReceiptStatusVerified ReceiptStatus = "VERIFIED_OK"
	ReceiptStatusPartial  ReceiptStatus = "PARTIALLY_VERIFIED"
	ReceiptStatusMismatch ReceiptStatus = "VERIFIED_MISMATCH"
)

// LineStatus is the per-line verification outcome of a GoodsReceiptLine.
type LineStatus string

const (
	LineStatusOK       LineStatus = "VERIFIED_OK"
	LineStatusQtyDiff  LineStatus = "QUANTITY_MISMATCH"
	LineStatusDamage   LineStatus = "DAMAGE_REPORTED"
	LineStatusShortage LineStatus = "SHORTAGE_REPORTED"
	LineStatusExcess   LineStatus = "EXCESS_RECEIVED"
)

// TicketPriority orders issue tickets for triage.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "LOW"
	PriorityMedium TicketPriority = "MEDIUM"
	PriorityHigh   TicketPriority = "HIGH"
	PriorityUrgent TicketPriority = "URGENT"
)

// Rank returns the numeric severity of the priority (LOW=0 .. URGENT=3).
// Unknown values rank below LOW.
func (p TicketPriority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return -1
	}
}

// NotificationStatus is the lifecycle status of a NotificationRecord.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "PENDING"
	NotificationSent      NotificationStatus = "SENT"
	NotificationFailed    NotificationStatus = "FAILED"
	NotificationExpired   NotificationStatus = "EXPIRED"
	NotificationDelivered NotificationStatus = "DELIVERED"
)

// GoodsReceipt records the physically received quantities against one
// dispatch. A receipt transitions at most once out of PENDING_VERIFICATION;
// re-verification is rejected at the service layer.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - DispatchID: reference to the dispatch this receipt covers.
//   - Status: lifecycle status, PENDING until verified.
//   - Remark: free-text operator remark captured at verification.
//   - VerifiedBy: identifier of the verifying user (set on verification).
//   - ReceivedAt / VerifiedAt: receiving and verification timestamps.
type GoodsReceipt struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	DispatchID string         `json:"dispatch_id" gorm:"type:varchar(64);not null;index:idx_receipt_dispatch"`
	Status     ReceiptStatus  `json:"status"      gorm:"type:varchar(32);not null;default:'PENDING_VERIFICATION';index"`
	Remark     string         `json:"remark"      gorm:"type:text"`
	VerifiedBy string         `json:"verified_by" gorm:"type:varchar(64)"`
	ReceivedAt time.Time      `json:"received_at"`
	VerifiedAt *time.Time     `json:"verified_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`

	// Lines are the per-item receiving rows belonging to this receipt.
	Lines []GoodsReceiptLine `json:"lines,omitempty" gorm:"foreignKey:GoodsReceiptID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for GoodsReceipt.
func (GoodsReceipt) TableName() string { return "goods_receipts" }

// GoodsReceiptLine is one receiving row per assigned order item.
// Discrepancy is always received minus confirmed; its sign must stay
// consistent with Status (negative for shortage/damage-eligible lines,
// positive for excess, zero for VERIFIED_OK unless the damage flag is set).
type GoodsReceiptLine struct {
	ID                string     `json:"id"                 gorm:"type:char(36);primaryKey"`
	GoodsReceiptID    string     `json:"goods_receipt_id"   gorm:"type:char(36);not null;index:idx_line_receipt"`
	OrderItemID       string     `json:"order_item_id"      gorm:"type:varchar(64);not null"`
	AssignedQty       int        `json:"assigned_qty"       gorm:"not null;check:assigned_qty >= 0"`
	ConfirmedQty      int        `json:"confirmed_qty"      gorm:"not null;check:confirmed_qty >= 0"`
	ReceivedQty       int        `json:"received_qty"       gorm:"not null;check:received_qty >= 0"`
	Discrepancy       int        `json:"discrepancy"        gorm:"not null;default:0"`
	Status            LineStatus `json:"status"             gorm:"type:varchar(32);not null;default:'VERIFIED_OK'"`
	Damaged           bool       `json:"damaged"            gorm:"not null;default:false"`
	DamageDescription string     `json:"damage_description" gorm:"type:text"`
	Remark            string     `json:"remark"             gorm:"type:text"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName returns the database table name for GoodsReceiptLine.
func (GoodsReceiptLine) TableName() string { return "goods_receipt_lines" }

// Ticket is the issue record opened automatically when a goods receipt has
// mismatches. At most one ticket exists per receipt (unique index), and the
// ticket is mutated only through explicit status transitions afterwards.
//
// Fields:
//   - Number: unique human-readable identifier (TKT-YYYYMMDD-seq-rand).
//   - Priority: LOW..URGENT, computed from the mismatch rules at creation.
//   - Status: OPEN -> IN_PROGRESS -> RESOLVED -> CLOSED, with reopening.
//   - ResolvedAt: set iff status is RESOLVED or CLOSED, cleared otherwise.
type Ticket struct {
	ID             string         `json:"id"               gorm:"type:char(36);primaryKey"`
	Number         string         `json:"number"           gorm:"type:varchar(64);not null;uniqueIndex:ux_ticket_number"`
	GoodsReceiptID string         `json:"goods_receipt_id" gorm:"type:char(36);not null;uniqueIndex:ux_ticket_receipt"`
	Title          string         `json:"title"            gorm:"type:varchar(255);not null"`
	Description    string         `json:"description"      gorm:"type:text"`
	Priority       TicketPriority `json:"priority"         gorm:"type:varchar(16);not null;index"`
	Status         TicketStatus   `json:"status"           gorm:"type:varchar(16);not null;default:'OPEN';index"`
	CreatedBy      string         `json:"created_by"       gorm:"type:varchar(64);not null"`
	AssignedTo     *string        `json:"assigned_to,omitempty" gorm:"type:varchar(64)"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"                gorm:"index"`

	// GoodsReceipt is the owning receipt. Tickets are cascade-deleted with it.
	GoodsReceipt GoodsReceipt `json:"-" gorm:"foreignKey:GoodsReceiptID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Ticket.
func (Ticket) TableName() string { return "tickets" }

// TicketComment is an append-only audit entry on a ticket. The first comment
// is system-generated with the mismatch summary; later comments record status
// transitions and caller-supplied notes.
type TicketComment struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	TicketID  string    `json:"ticket_id" gorm:"type:char(36);not null;index:idx_comment_ticket"`
	AuthorID  string    `json:"author_id" gorm:"type:varchar(64);not null"`
	Body      string    `json:"body"      gorm:"type:text;not null"`
	System    bool      `json:"system"    gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`

	// Ticket is the parent ticket. Comments are cascade-deleted with it.
	Ticket Ticket `json:"-" gorm:"foreignKey:TicketID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for TicketComment.
func (TicketComment) TableName() string { return "ticket_comments" }

// DeviceToken is one registered push endpoint for one user, unique by the
// endpoint value. Tokens are deactivated (not deleted) when the gateway
// reports the endpoint permanently invalid, and purged by Cleanup once
// expired or inactive beyond the grace period.
type DeviceToken struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID     string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_token_user_cat,priority:1"`
	Token      string    `json:"-"          gorm:"type:varchar(4096);not null;uniqueIndex:ux_device_token"`
	Category   string    `json:"category"   gorm:"type:varchar(16);not null;default:'web';index:idx_token_user_cat,priority:2"`
	Active     bool      `json:"active"     gorm:"not null;default:true"`
	Metadata   string    `json:"metadata"   gorm:"type:text"` // free-form client JSON
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for DeviceToken.
func (DeviceToken) TableName() string { return "device_tokens" }

// NotificationRecord is one logical send attempt to one user. It doubles as
// the durable outbox row for the retry sweeper: the original payload is kept
// in Metadata so a failed delivery can be reconstructed and re-attempted.
type NotificationRecord struct {
	ID          string             `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string             `json:"user_id"      gorm:"type:varchar(64);not null;index:idx_notification_user"`
	Title       string             `json:"title"        gorm:"type:varchar(255);not null"`
	Body        string             `json:"body"         gorm:"type:text"`
	Priority    string             `json:"priority"     gorm:"type:varchar(16);not null;default:'NORMAL'"`
	Status      NotificationStatus `json:"status"       gorm:"type:varchar(16);not null;default:'PENDING';index"`
	TargetCount int                `json:"target_count" gorm:"not null;default:0"`
	SentCount   int                `json:"sent_count"   gorm:"not null;default:0"`
	FailedCount int                `json:"failed_count" gorm:"not null;default:0"`
	RetryCount  int                `json:"retry_count"  gorm:"not null;default:0"`
	LastRetryAt *time.Time         `json:"last_retry_at,omitempty"`
	ScheduledAt time.Time          `json:"scheduled_at"`
	ExpiresAt   time.Time          `json:"expires_at"   gorm:"index"`
	Metadata    string             `json:"metadata"     gorm:"type:text"` // opaque JSON incl. original payload
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// TableName returns the database table name for NotificationRecord.
func (NotificationRecord) TableName() string { return "notification_records" }

// User is the minimal directory row backing role-based notification fan-out.
// Full user management lives outside this subsystem; only identity, role,
// and the active flag are consulted here.
type User struct {
	ID        string    `json:"id"     gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name"   gorm:"type:varchar(128);not null"`
	Email     string    `json:"email"  gorm:"type:varchar(255);not null;uniqueIndex:ux_user_email"`
	Role      string    `json:"role"   gorm:"type:varchar(32);not null;index"`
	Active    bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }
