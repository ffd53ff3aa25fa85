package columngraph

import (
	"fmt"
	"strings"

	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/profile"
)

// Kind discriminates the five node variants a column graph can hold.
type Kind int

const (
	StaticNode Kind = iota
	ParserNode
	LookupNode
	ParserKeyNode
	ProcessedKeyNode
)

// Node is one vertex of the column dependency graph. Exactly one of the
// Static/Parser/Lookup/ParserKey/ProcessedKey fields is populated, selected
// by Kind. mapColumn is the node-level "mappable" flag duplicate
// optimization ORs into a surviving node when it absorbs a duplicate; it
// starts false for every freshly built node.
type Node struct {
	Kind Kind

	Static       *profile.StaticColumn
	Parser       *profile.ParserColumn
	Lookup       *profile.LookupColumn
	ParserKey    *profile.ParserKeyColumn
	ProcessedKey *profile.ProcessedKeyColumn

	mapColumn bool
}

// Identifier returns the column this node contributes a value to.
func (n *Node) Identifier() identifier.Column {
	switch n.Kind {
	case StaticNode:
		return n.Static.ColumnIdentifier
	case ParserNode:
		return n.Parser.ColumnIdentifier
	case LookupNode:
		return n.Lookup.ColumnIdentifier
	case ParserKeyNode:
		return n.ParserKey.KeyColumnIdentifier
	case ProcessedKeyNode:
		return n.ProcessedKey.KeyColumnIdentifier
	default:
		panic("columngraph: unknown node kind")
	}
}

// declaredMap reports the map_column flag the profile declared directly on
// this column. Synthetic key nodes never declare one.
func (n *Node) declaredMap() bool {
	switch n.Kind {
	case StaticNode:
		return n.Static.MapColumn
	case ParserNode:
		return n.Parser.MapColumn
	case LookupNode:
		return n.Lookup.MapColumn
	default:
		return false
	}
}

// IsMappable reports whether this node's value should appear in the target
// table: either the profile declared it directly, or duplicate
// optimization merged in a duplicate that did.
func (n *Node) IsMappable() bool {
	return n.mapColumn || n.declaredMap()
}

// IsTransient reports whether this node's staging column exists only to
// feed other columns and should never itself appear in the staging table's
// non-transient column set, nor in a MERGE's INSERT/UPDATE lists.
//
// Lookup columns are never transient here. The original engine flags this
// with a standing TODO: a lookup key could in principle be non-transient if
// future regex formatters/validators made it independently meaningful, but
// no such feature exists, so this stays fixed at false.
func (n *Node) IsTransient() bool {
	switch n.Kind {
	case StaticNode:
		return true
	case ParserNode:
		return false
	case LookupNode:
		return false
	case ParserKeyNode, ProcessedKeyNode:
		return true
	default:
		panic("columngraph: unknown node kind")
	}
}

func (n *Node) String() string {
	switch n.Kind {
	case StaticNode:
		return fmt.Sprintf("static column %s", n.Static.ColumnIdentifier.Full())
	case ParserNode:
		return fmt.Sprintf("parser column %s", n.Parser.ColumnIdentifier.Full())
	case LookupNode:
		return fmt.Sprintf("lookup column %s", n.Lookup.ColumnIdentifier.Full())
	case ParserKeyNode:
		return fmt.Sprintf("parser key column %s", n.ParserKey.KeyColumnIdentifier.Full())
	case ProcessedKeyNode:
		return fmt.Sprintf("processed key column %s", n.ProcessedKey.KeyColumnIdentifier.Full())
	default:
		return "unknown column node"
	}
}

// dedupKey returns a string that is equal for two nodes iff they should be
// collapsed by duplicate optimization: same variant and identical
// identifying data, deliberately ignoring the map flag (SPEC_FULL.md §4.4).
func (n *Node) dedupKey() string {
	var b strings.Builder
	switch n.Kind {
	case StaticNode:
		fmt.Fprintf(&b, "static|%s|%s", n.Static.ColumnIdentifier.Full(), n.Static.Value)
	case ParserNode:
		fmt.Fprintf(&b, "parser|%s|%s", n.Parser.ColumnIdentifier.Full(), n.Parser.FieldName)
	case LookupNode:
		fmt.Fprintf(&b, "lookup|%s|%s|%s|", n.Lookup.ColumnIdentifier.Full(), n.Lookup.TableIdentifier.Full(), n.Lookup.OutputColumnIdentifier.Full())
		for _, k := range n.Lookup.KeyColumns {
			switch {
			case k.ParserKeyColumn != nil:
				fmt.Fprintf(&b, "pk(%s,%s);", k.ParserKeyColumn.KeyColumnIdentifier.Full(), k.ParserKeyColumn.FieldName)
			case k.ProcessedKeyColumn != nil:
				fmt.Fprintf(&b, "ck(%s,%s);", k.ProcessedKeyColumn.KeyColumnIdentifier.Full(), k.ProcessedKeyColumn.ColumnIdentifier.Full())
			}
		}
	case ParserKeyNode:
		fmt.Fprintf(&b, "parserkey|%s|%s", n.ParserKey.KeyColumnIdentifier.Full(), n.ParserKey.FieldName)
	case ProcessedKeyNode:
		fmt.Fprintf(&b, "processedkey|%s|%s", n.ProcessedKey.KeyColumnIdentifier.Full(), n.ProcessedKey.ColumnIdentifier.Full())
	}
	return b.String()
}
