package event

// PropertyChangedArgs describes a changed property. An empty name means
// all properties changed.
type PropertyChangedArgs struct {
	PropertyName string
}

// PropertyChangedHandler handles property change notifications.
type PropertyChangedHandler func(sender any, args *PropertyChangedArgs)

// PropertyNotifier can be embedded by types that raise property changes.
// The promoted PropertyChanged field is what subscribers attach to.
type PropertyNotifier struct {
	PropertyChanged Event[*PropertyChangedArgs]
}

// RaisePropertyChanged notifies subscribers that name changed on sender.
func (n *PropertyNotifier) RaisePropertyChanged(sender any, name string) {
	n.PropertyChanged.Raise(sender, &PropertyChangedArgs{PropertyName: name})
}

// CollectionChangedAction is the kind of change applied to a collection.
type CollectionChangedAction int

const (
	CollectionAdd CollectionChangedAction = iota
	CollectionRemove
	CollectionReplace
	CollectionMove
	CollectionReset
)

func (a CollectionChangedAction) String() string {
	switch a {
	case CollectionAdd:
		return "add"
	case CollectionRemove:
		return "remove"
	case CollectionReplace:
		return "replace"
	case CollectionMove:
		return "move"
	case CollectionReset:
		return "reset"
	default:
		return "unknown"
	}
}

// CollectionChangedArgs describes a collection change. Indexes are -1 when
// not applicable.
type CollectionChangedArgs struct {
	Action   CollectionChangedAction
	NewItems []any
	OldItems []any
	NewIndex int
	OldIndex int
}

// CollectionChangedHandler handles collection change notifications.
type CollectionChangedHandler func(sender any, args *CollectionChangedArgs)

// CollectionNotifier can be embedded by collections that raise changes.
type CollectionNotifier struct {
	CollectionChanged Event[*CollectionChangedArgs]
}

// RaiseCollectionChanged notifies subscribers of a change on sender.
func (n *CollectionNotifier) RaiseCollectionChanged(sender any, args *CollectionChangedArgs) {
	n.CollectionChanged.Raise(sender, args)
}

// Added builds the arguments for items inserted at index.
func Added(index int, items ...any) *CollectionChangedArgs {
	return &CollectionChangedArgs{Action: CollectionAdd, NewItems: items, NewIndex: index, OldIndex: -1}
}

// Removed builds the arguments for items removed from index.
func Removed(index int, items ...any) *CollectionChangedArgs {
	return &CollectionChangedArgs{Action: CollectionRemove, OldItems: items, NewIndex: -1, OldIndex: index}
}

// Reset builds the arguments for a collection that changed wholesale.
func Reset() *CollectionChangedArgs {
	return &CollectionChangedArgs{Action: CollectionReset, NewIndex: -1, OldIndex: -1}
}
