// Package storetest provides an in-memory DynamoDB stand-in for tests.
// It implements store.DynamoAPI with put/overwrite-by-id semantics and
// counts every call so tests can prove what a run did (or did not) touch.
package storetest

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Calls tallies API invocations. Mutating calls are the interesting ones:
// a dry run must leave Put, BatchWrite and Update at zero.
type Calls struct {
	ListTables    int
	DescribeTable int
	Scan          int
	PutItem       int
	BatchWrite    int
	UpdateItem    int
}

type Fake struct {
	mu sync.Mutex

	// tables maps physical table name to items in insertion order.
	tables map[string][]map[string]types.AttributeValue
	index  map[string]map[string]int // table -> id -> position

	// PageSize splits scans into pages when > 0, to exercise pagination.
	PageSize int

	// UnprocessedRounds makes the next N BatchWriteItem calls return all
	// requested items as unprocessed before succeeding.
	UnprocessedRounds int

	// Err, when set, is returned by every call.
	Err error

	// FailIDs makes PutItem fail for specific record ids.
	FailIDs map[string]bool

	Calls Calls

	// Updates records every UpdateItem input for assertion.
	Updates []*dynamodb.UpdateItemInput
}

func New() *Fake {
	return &Fake{
		tables: make(map[string][]map[string]types.AttributeValue),
		index:  make(map[string]map[string]int),
	}
}

// CreateTable registers an empty table.
func (f *Fake) CreateTable(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateTableLocked(name)
}

func itemID(item map[string]types.AttributeValue) string {
	if s, ok := item["id"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *Fake) put(table string, item map[string]types.AttributeValue) {
	if pos, ok := f.index[table][itemID(item)]; ok {
		f.tables[table][pos] = item
		return
	}
	f.index[table][itemID(item)] = len(f.tables[table])
	f.tables[table] = append(f.tables[table], item)
}

// Seed inserts items into a table, creating it if needed.
func (f *Fake) Seed(table string, items ...map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateTableLocked(table)
	for _, item := range items {
		f.put(table, item)
	}
}

// Items returns a table's items in insertion order.
func (f *Fake) Items(table string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]types.AttributeValue, len(f.tables[table]))
	copy(out, f.tables[table])
	return out
}

// Len returns a table's item count.
func (f *Fake) Len(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func (f *Fake) ListTables(_ context.Context, _ *dynamodb.ListTablesInput, _ ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls.ListTables++
	if f.Err != nil {
		return nil, f.Err
	}
	var names []string
	for name := range f.tables {
		names = append(names, name)
	}
	return &dynamodb.ListTablesOutput{TableNames: names}, nil
}

func (f *Fake) DescribeTable(_ context.Context, params *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls.DescribeTable++
	if f.Err != nil {
		return nil, f.Err
	}
	if _, ok := f.tables[*params.TableName]; !ok {
		return nil, &types.ResourceNotFoundException{}
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableName: params.TableName},
	}, nil
}

func (f *Fake) Scan(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls.Scan++
	if f.Err != nil {
		return nil, f.Err
	}
	items, ok := f.tables[*params.TableName]
	if !ok {
		return nil, &types.ResourceNotFoundException{}
	}

	start := 0
	if params.ExclusiveStartKey != nil {
		if pos, ok := f.index[*params.TableName][itemID(params.ExclusiveStartKey)]; ok {
			start = pos + 1
		}
	}
	end := len(items)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}

	out := &dynamodb.ScanOutput{Count: int32(end - start)}
	if params.Select != types.SelectCount {
		out.Items = append([]map[string]types.AttributeValue(nil), items[start:end]...)
	}
	if end < len(items) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: itemID(items[end-1])},
		}
	}
	return out, nil
}

func (f *Fake) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls.PutItem++
	if f.Err != nil {
		return nil, f.Err
	}
	if f.FailIDs[itemID(params.Item)] {
		return nil, &types.ProvisionedThroughputExceededException{}
	}
	f.CreateTableLocked(*params.TableName)
	f.put(*params.TableName, params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *Fake) BatchWriteItem(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls.BatchWrite++
	if f.Err != nil {
		return nil, f.Err
	}
	if f.UnprocessedRounds > 0 {
		f.UnprocessedRounds--
		return &dynamodb.BatchWriteItemOutput{UnprocessedItems: params.RequestItems}, nil
	}
	for table, reqs := range params.RequestItems {
		f.CreateTableLocked(table)
		for _, req := range reqs {
			if req.PutRequest != nil {
				f.put(table, req.PutRequest.Item)
			}
			if req.DeleteRequest != nil {
				if pos, ok := f.index[table][itemID(req.DeleteRequest.Key)]; ok {
					f.tables[table] = append(f.tables[table][:pos], f.tables[table][pos+1:]...)
					delete(f.index[table], itemID(req.DeleteRequest.Key))
					for id, p := range f.index[table] {
						if p > pos {
							f.index[table][id] = p - 1
						}
					}
				}
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (f *Fake) UpdateItem(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls.UpdateItem++
	if f.Err != nil {
		return nil, f.Err
	}
	f.Updates = append(f.Updates, params)
	return &dynamodb.UpdateItemOutput{}, nil
}

// CreateTableLocked is the lock-held variant used internally.
func (f *Fake) CreateTableLocked(name string) {
	if _, ok := f.tables[name]; !ok {
		f.tables[name] = nil
		f.index[name] = make(map[string]int)
	}
}
