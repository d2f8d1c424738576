package core

import (
	"context"
	"sort"
	"sync"
)

// fakeDriver is an in-memory Driver used by the engine tests. It stores
// rows per table, evaluates condition trees directly, and records every
// select so tests can assert the engine's query batching.
type fakeDriver struct {
	mutex  sync.Mutex
	tables map[string][]Row
	nextID map[string]int64

	selectCount int
	selectedBy  []string

	pingErr    error
	connectErr error

	commits   int
	rollbacks int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		tables: make(map[string][]Row),
		nextID: make(map[string]int64),
	}
}

// seed appends pre-existing rows without touching the id sequence unless
// the row carries a larger int id.
func (d *fakeDriver) seed(table string, rows ...Row) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for _, row := range rows {
		copied := make(Row, len(row))
		for key, value := range row {
			copied[key] = value
		}
		if id, ok := copied[IDField].(int64); ok && id > d.nextID[table] {
			d.nextID[table] = id
		}
		if id, ok := copied[IDField].(int); ok && int64(id) > d.nextID[table] {
			d.nextID[table] = int64(id)
		}
		d.tables[table] = append(d.tables[table], copied)
	}
}

func (d *fakeDriver) rowsOf(table string) []Row {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]Row(nil), d.tables[table]...)
}

func (d *fakeDriver) Connect(ctx context.Context) error { return d.connectErr }
func (d *fakeDriver) Ping(ctx context.Context) error    { return d.pingErr }
func (d *fakeDriver) Close(ctx context.Context) error   { return nil }

type fakeTransaction struct{ driver *fakeDriver }

func (t *fakeTransaction) Commit(ctx context.Context) error {
	t.driver.mutex.Lock()
	defer t.driver.mutex.Unlock()
	t.driver.commits++
	return nil
}

func (t *fakeTransaction) Rollback(ctx context.Context) error {
	t.driver.mutex.Lock()
	defer t.driver.mutex.Unlock()
	t.driver.rollbacks++
	return nil
}

func (d *fakeDriver) Begin(ctx context.Context) (Transaction, error) {
	return &fakeTransaction{driver: d}, nil
}

func (d *fakeDriver) Select(ctx context.Context, desc *Description) ([]Row, error) {
	d.mutex.Lock()
	d.selectCount++
	d.selectedBy = append(d.selectedBy, desc.Collection)
	source := append([]Row(nil), d.tables[desc.Collection]...)
	d.mutex.Unlock()

	matched := make([]Row, 0, len(source))
	for _, row := range source {
		if evaluateCondition(desc.Condition, row) {
			matched = append(matched, row)
		}
	}
	for i := len(desc.Sort) - 1; i >= 0; i-- {
		sortItem := desc.Sort[i]
		sort.SliceStable(matched, func(a, b int) bool {
			cmp := compareValues(matched[a][sortItem.FieldName], matched[b][sortItem.FieldName])
			if sortItem.Order < 0 {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if desc.Offset > 0 {
		if desc.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[desc.Offset:]
		}
	}
	if desc.Limit > 0 && desc.Limit < len(matched) {
		matched = matched[:desc.Limit]
	}

	out := make([]Row, 0, len(matched))
	for _, row := range matched {
		copied := make(Row, len(row))
		for key, value := range row {
			copied[key] = value
		}
		out = append(out, copied)
	}
	return out, nil
}

func (d *fakeDriver) Aggregate(ctx context.Context, desc *Description, agg Aggregate) (any, error) {
	rows, err := d.Select(ctx, &Description{Collection: desc.Collection, Condition: desc.Condition})
	if err != nil {
		return nil, err
	}
	if agg.Kind == AggregateCount {
		return int64(len(rows)), nil
	}
	var sum float64
	count := 0
	for _, row := range rows {
		value, err := toFloat64(row[agg.Column])
		if err != nil {
			continue
		}
		sum += value
		count++
	}
	switch agg.Kind {
	case AggregateSum:
		return sum, nil
	case AggregateAvg:
		if count == 0 {
			return nil, nil
		}
		return sum / float64(count), nil
	}
	return nil, nil
}

func (d *fakeDriver) Insert(ctx context.Context, target Collection, values Row) (any, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	copied := make(Row, len(values))
	for key, value := range values {
		copied[key] = value
	}
	var generated any
	if _, supplied := copied[IDField]; !supplied {
		d.nextID[target.Name]++
		copied[IDField] = d.nextID[target.Name]
		generated = d.nextID[target.Name]
	}
	d.tables[target.Name] = append(d.tables[target.Name], copied)
	return generated, nil
}

func (d *fakeDriver) InsertMany(ctx context.Context, target Collection, values []Row) error {
	for _, row := range values {
		if _, err := d.Insert(ctx, target, row); err != nil {
			return err
		}
	}
	return nil
}

func (d *fakeDriver) Update(ctx context.Context, target Collection, condition *Condition, changes Changes) (int64, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	var affected int64
	for _, row := range d.tables[target.Name] {
		if !evaluateCondition(condition, row) {
			continue
		}
		for key, value := range changes {
			row[key] = value
		}
		affected++
	}
	return affected, nil
}

func (d *fakeDriver) Delete(ctx context.Context, target Collection, condition *Condition) (int64, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	kept := make([]Row, 0, len(d.tables[target.Name]))
	var affected int64
	for _, row := range d.tables[target.Name] {
		if evaluateCondition(condition, row) {
			affected++
			continue
		}
		kept = append(kept, row)
	}
	d.tables[target.Name] = kept
	return affected, nil
}

func (d *fakeDriver) Upsert(ctx context.Context, target Collection, values Row, conflictKeys []string) error {
	d.mutex.Lock()
	for _, row := range d.tables[target.Name] {
		match := true
		for _, key := range conflictKeys {
			if NormalizeKey(row[key]) != NormalizeKey(values[key]) {
				match = false
				break
			}
		}
		if match {
			for key, value := range values {
				row[key] = value
			}
			d.mutex.Unlock()
			return nil
		}
	}
	d.mutex.Unlock()
	_, err := d.Insert(ctx, target, values)
	return err
}

func (d *fakeDriver) Raw(ctx context.Context, query string, args ...any) ([]Row, error) {
	return nil, nil
}

// evaluateCondition interprets a condition tree against one row.
func evaluateCondition(condition *Condition, row Row) bool {
	if condition == nil || condition.Operator == nil {
		return true
	}
	switch *condition.Operator {
	case OpAnd:
		for _, child := range condition.Children {
			if !evaluateCondition(child, row) {
				return false
			}
		}
		return true
	case OpOr:
		for _, child := range condition.Children {
			if evaluateCondition(child, row) {
				return true
			}
		}
		return len(condition.Children) == 0
	case OpNot:
		for _, child := range condition.Children {
			if evaluateCondition(child, row) {
				return false
			}
		}
		return true
	}

	value := row[condition.FieldName]
	switch *condition.Operator {
	case OpNil:
		return value == nil
	case OpNotNil:
		return value != nil
	case OpEq:
		return NormalizeKey(value) == NormalizeKey(condition.Value)
	case OpNe:
		return NormalizeKey(value) != NormalizeKey(condition.Value)
	case OpGt:
		return compareValues(value, condition.Value) > 0
	case OpGte:
		return compareValues(value, condition.Value) >= 0
	case OpLt:
		return compareValues(value, condition.Value) < 0
	case OpLte:
		return compareValues(value, condition.Value) <= 0
	case OpIn:
		valueList, _ := condition.Value.([]any)
		for _, candidate := range valueList {
			if NormalizeKey(value) == NormalizeKey(candidate) {
				return true
			}
		}
		return false
	case OpNotIn:
		valueList, _ := condition.Value.([]any)
		for _, candidate := range valueList {
			if NormalizeKey(value) == NormalizeKey(candidate) {
				return false
			}
		}
		return true
	case OpBetween:
		bounds, _ := condition.Value.([]any)
		if len(bounds) != 2 {
			return false
		}
		return compareValues(value, bounds[0]) >= 0 && compareValues(value, bounds[1]) <= 0
	}
	return false
}

// compareValues orders two scalars, numerically when both coerce to
// float64 and lexically otherwise.
func compareValues(a, b any) int {
	fa, errA := toFloat64(a)
	fb, errB := toFloat64(b)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	sa, sb := NormalizeKey(a), NormalizeKey(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

// newFakeConnection wires a fake driver into a Connection with fast retry
// settings so backoff tests finish quickly.
func newFakeConnection(driver *fakeDriver) *Connection {
	return NewConnection("test", driver, Config{MaxRetries: 2, RetryBaseDelay: 1})
}
