package core

import (
	"reflect"
	"time"

	"github.com/shopspring/decimal"
)

type Sex int

const (
	SexUnknown Sex = iota
	SexFemale
	SexMale
)

// Tier is an enumeration whose wire form is not its Go representation.
type Tier struct{ code string }

var (
	TierFree = Tier{code: "free"}
	TierGold = Tier{code: "gold"}
)

func (tier Tier) Ordinal() int64 {
	if tier.code == "gold" {
		return 2
	}
	return 1
}

type Address struct {
	Street string `db:"street"`
	City   string `db:"city"`
}

type Person struct {
	ID          string          `db:"_id"`
	Name        string          `db:"name"`
	Age         int             `db:"age"`
	Score       float64         `db:"score"`
	Balance     decimal.Decimal `db:"balance"`
	Sex         Sex             `db:"sex"`
	Tier        Tier            `db:"tier"`
	AddressList []string        `db:"address_list"`
	Son         *Person         `db:"son"`
	Home        Address         `db:"home"`
	Avatar      []byte          `db:"avatar"`
	Nickname    *string         `db:"nickname"`
	Internal    string          `db:"-"`
	hidden      int
}

type Note struct {
	ID        string     `db:"_id"`
	Body      string     `db:"body"`
	Views     int64      `db:"views"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

func personSchema() *SchemaMeta[Person] {
	return Schema[Person](Table[Person]("people"), Database[Person]("app"))
}

func noteSchema() *SchemaMeta[Note] {
	return Schema[Note](
		Table[Note]("notes"),
		Database[Note]("app"),
		OverrideField(func(n *Note) *time.Time { return &n.CreatedAt }, CreatedAt()),
		OverrideField(func(n *Note) *time.Time { return &n.UpdatedAt }, UpdatedAt()),
		OverrideField(func(n *Note) **time.Time { return &n.DeletedAt }, DeletedAt()),
	)
}

func reflectValue(pointer any) reflect.Value {
	return reflect.ValueOf(pointer).Elem()
}
