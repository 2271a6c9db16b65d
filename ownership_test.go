package netconf

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAllocator tracks every buffer it hands out so that frees of unknown
// or already freed buffers are caught.
type countingAllocator struct {
	mu          sync.Mutex
	live        map[*byte]int
	dups, frees int
	doubleFrees int
	failAfter   int
}

func newCountingAllocator() *countingAllocator {
	return &countingAllocator{live: make(map[*byte]int), failAfter: -1}
}

func (a *countingAllocator) Dup(p []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failAfter >= 0 && a.dups >= a.failAfter {
		return nil, fmt.Errorf("%w: counting allocator exhausted", ErrAllocation)
	}
	buf := append([]byte(nil), p...)
	a.live[&buf[0]] = len(buf)
	a.dups++
	return buf, nil
}

func (a *countingAllocator) Free(p []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.frees++
	if _, ok := a.live[&p[0]]; !ok {
		a.doubleFrees++
		return
	}
	delete(a.live, &p[0])
}

func (a *countingAllocator) balanced(t *testing.T) {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()

	assert.Empty(t, a.live, "leaked buffers")
	assert.Equal(t, a.dups, a.frees)
	assert.Zero(t, a.doubleFrees)
}

// countingStore wraps a TreeStore and counts the trees and fragments it
// duplicates and releases.
type countingStore struct {
	TreeStore
	mu                        sync.Mutex
	live                      map[*Node]bool
	dups, treeFrees, fragFree int
	doubleFrees               int
	failDup                   bool
}

func newCountingStore() *countingStore {
	return &countingStore{live: make(map[*Node]bool)}
}

func (s *countingStore) DupTree(n *Node) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failDup {
		return nil, fmt.Errorf("%w: counting store exhausted", ErrAllocation)
	}
	c, err := s.TreeStore.DupTree(n)
	if err != nil {
		return nil, err
	}
	s.live[c] = true
	s.dups++
	return c, nil
}

func (s *countingStore) FreeTree(n *Node) {
	if n == nil {
		return
	}
	s.mu.Lock()
	s.treeFrees++
	if s.live[n] {
		delete(s.live, n)
	}
	s.mu.Unlock()
	s.TreeStore.FreeTree(n)
}

func (s *countingStore) FreeFragment(f *Fragment) {
	if f == nil {
		return
	}
	s.mu.Lock()
	if f.Raw == nil {
		s.doubleFrees++
	}
	s.fragFree++
	s.mu.Unlock()
	s.TreeStore.FreeFragment(f)
}

// allKinds builds one request of every kind with every optional parameter set.
var allKinds = []struct {
	kind  Kind
	texts int
	trees int
	build func(f *Factory, pt ParamType) (Request, error)
}{
	{KindGeneric, 0, 1, func(f *Factory, pt ParamType) (Request, error) {
		tree := NewNode("urn:example:system", "restart", "")
		tree.Append(NewNode("", "delay", "5"))
		return f.NewGenericRequest(tree, pt)
	}},
	{KindGenericXML, 1, 0, func(f *Factory, pt ParamType) (Request, error) {
		return f.NewGenericXMLRequest([]byte(`<get-sessions xmlns="urn:example:sessions"/>`), pt)
	}},
	{KindGetConfig, 1, 0, func(f *Factory, pt ParamType) (Request, error) {
		return f.NewGetConfigRequest(Running, []byte(`<interfaces/>`), pt)
	}},
	{KindGet, 1, 0, func(f *Factory, pt ParamType) (Request, error) {
		return f.NewGetRequest([]byte("/interfaces"), pt)
	}},
	{KindEditConfig, 1, 0, func(f *Factory, pt ParamType) (Request, error) {
		return f.NewEditConfigRequest(Candidate, MergeConfig, TestThenSet, RollbackOnError, []byte(`<system/>`), pt)
	}},
	{KindCopyConfig, 2, 0, func(f *Factory, pt ParamType) (Request, error) {
		return f.NewCopyConfigRequest(Startup, []byte("file://a.cfg"), Running, []byte(`<config/>`), pt)
	}},
	{KindDeleteConfig, 1, 0, func(f *Factory, pt ParamType) (Request, error) {
		return f.NewDeleteConfigRequest(Startup, []byte("file://old.cfg"), pt)
	}},
	{KindLock, 0, 0, func(f *Factory, _ ParamType) (Request, error) {
		return f.NewLockRequest(Candidate), nil
	}},
	{KindUnlock, 0, 0, func(f *Factory, _ ParamType) (Request, error) {
		return f.NewUnlockRequest(Candidate), nil
	}},
	{KindGetSchema, 3, 0, func(f *Factory, pt ParamType) (Request, error) {
		return f.NewGetSchemaRequest([]byte("ietf-interfaces"), []byte("2018-02-20"), []byte("yang"), pt)
	}},
	{KindCommit, 2, 0, func(f *Factory, pt ParamType) (Request, error) {
		return f.NewCommitRequest(true, 60, []byte("p1"), []byte("p0"), pt)
	}},
	{KindDiscardChanges, 0, 0, func(f *Factory, _ ParamType) (Request, error) {
		return f.NewDiscardChangesRequest(), nil
	}},
	{KindCancelCommit, 1, 0, func(f *Factory, pt ParamType) (Request, error) {
		return f.NewCancelCommitRequest([]byte("p1"), pt)
	}},
	{KindValidate, 1, 0, func(f *Factory, pt ParamType) (Request, error) {
		return f.NewValidateRequest(Candidate, []byte("file://v.cfg"), pt)
	}},
	{KindCreateSubscription, 4, 0, func(f *Factory, pt ParamType) (Request, error) {
		return f.NewCreateSubscriptionRequest(
			[]byte("NETCONF"),
			[]byte(`<netconf-config-change/>`),
			[]byte("2023-06-07T18:31:48Z"),
			[]byte("2023-06-07T19:31:48Z"),
			pt,
		)
	}},
	{KindKillSession, 0, 0, func(f *Factory, _ ParamType) (Request, error) {
		return f.NewKillSessionRequest(42), nil
	}},
}

func TestAllKindsCovered(t *testing.T) {
	seen := make(map[Kind]bool)
	for _, tc := range allKinds {
		seen[tc.kind] = true
	}
	for k := Kind(0); k < numKinds; k++ {
		assert.True(t, seen[k], "missing %s", k)
	}
}

func TestOwnershipRoundTrip(t *testing.T) {
	for _, pt := range []ParamType{ByReference, DupAndOwn, ConstReference} {
		for _, tc := range allKinds {
			t.Run(pt.String()+"/"+tc.kind.String(), func(t *testing.T) {
				alloc := newCountingAllocator()
				store := newCountingStore()
				f := NewFactory(WithAllocator(alloc), WithContentStore(store))

				req, err := tc.build(f, pt)
				require.NoError(t, err)
				assert.Equal(t, tc.kind, req.Kind())

				wantTexts, wantTrees := 0, 0
				if pt == DupAndOwn {
					wantTexts, wantTrees = tc.texts, tc.trees
				}
				assert.Equal(t, wantTexts, alloc.dups)
				assert.Equal(t, wantTrees, store.dups)

				FreeRequest(req)
				alloc.balanced(t)
				assert.Empty(t, store.live, "leaked trees")
				assert.Equal(t, wantTrees, store.treeFrees)

				// a second release must not give anything back twice
				FreeRequest(req)
				alloc.balanced(t)
				assert.Equal(t, wantTrees, store.treeFrees)
			})
		}
	}
}

func TestDupAndOwnIsIndependent(t *testing.T) {
	f := NewFactory()

	filter := []byte("/interfaces/interface")
	req, err := f.NewGetRequest(filter, DupAndOwn)
	require.NoError(t, err)
	defer FreeRequest(req)

	copy(filter, "/xxxxxxxxxxxxxxxxxxxx")
	assert.Equal(t, "/interfaces/interface", req.Filter())

	tree := NewNode("urn:example:system", "restart", "")
	generic, err := f.NewGenericRequest(tree, DupAndOwn)
	require.NoError(t, err)
	defer FreeRequest(generic)

	tree.Value = "changed"
	tree.Append(NewNode("", "delay", "5"))
	assert.NotSame(t, tree, generic.Content())
	assert.Empty(t, generic.Content().Value)
	assert.Nil(t, generic.Content().FirstChild())
}

func TestBorrowNonRelease(t *testing.T) {
	for _, pt := range []ParamType{ByReference, ConstReference} {
		t.Run(pt.String(), func(t *testing.T) {
			alloc := newCountingAllocator()
			store := newCountingStore()
			f := NewFactory(WithAllocator(alloc), WithContentStore(store))

			canary := []byte(`<canary xmlns="urn:example:canary"/>`)
			req, err := f.NewGetRequest(canary, pt)
			require.NoError(t, err)

			// stored as given
			canary[1] = 'C'
			assert.Equal(t, `<Canary xmlns="urn:example:canary"/>`, req.Filter())
			canary[1] = 'c'

			tree := NewNode("urn:example:canary", "canary", "alive")
			generic, err := f.NewGenericRequest(tree, pt)
			require.NoError(t, err)
			assert.Same(t, tree, generic.Content())

			FreeRequest(req)
			FreeRequest(generic)

			assert.Equal(t, `<canary xmlns="urn:example:canary"/>`, string(canary))
			assert.Equal(t, "alive", tree.Value)
			assert.Zero(t, alloc.dups)
			assert.Zero(t, alloc.frees)
			assert.Zero(t, store.treeFrees)
		})
	}
}

func TestAbsentParamsNotDuplicated(t *testing.T) {
	alloc := newCountingAllocator()
	f := NewFactory(WithAllocator(alloc))

	req, err := f.NewCommitRequest(false, 0, nil, []byte{}, DupAndOwn)
	require.NoError(t, err)
	assert.Zero(t, alloc.dups)
	assert.Empty(t, req.Persist())
	assert.Empty(t, req.PersistID())

	sub, err := f.NewCreateSubscriptionRequest(nil, nil, nil, nil, DupAndOwn)
	require.NoError(t, err)
	assert.Zero(t, alloc.dups)

	FreeRequest(req)
	FreeRequest(sub)
	assert.Zero(t, alloc.frees)
}

func TestAllocationFailureUnwinds(t *testing.T) {
	// identifier and version fit, format does not
	alloc := NewPoolAllocator(len("ietf-interfaces") + len("2018-02-20") + 1)
	f := NewFactory(WithAllocator(alloc))

	req, err := f.NewGetSchemaRequest([]byte("ietf-interfaces"), []byte("2018-02-20"), []byte("yang"), DupAndOwn)
	require.ErrorIs(t, err, ErrAllocation)
	assert.Nil(t, req)
	assert.Zero(t, alloc.Outstanding())

	for k := 0; k < 4; k++ {
		t.Run(fmt.Sprintf("fail after %d", k), func(t *testing.T) {
			alloc := newCountingAllocator()
			alloc.failAfter = k
			f := NewFactory(WithAllocator(alloc))

			_, err := f.NewCreateSubscriptionRequest(
				[]byte("NETCONF"), []byte("/a"), []byte("2023-06-07T18:31:48Z"), []byte("2023-06-07T19:31:48Z"), DupAndOwn,
			)
			require.ErrorIs(t, err, ErrAllocation)
			assert.Equal(t, k, alloc.dups)
			alloc.balanced(t)
		})
	}
}

func TestTreeDuplicationFailure(t *testing.T) {
	store := newCountingStore()
	store.failDup = true
	f := NewFactory(WithContentStore(store))

	_, err := f.NewGenericRequest(NewNode("", "restart", ""), DupAndOwn)
	require.ErrorIs(t, err, ErrAllocation)
	assert.False(t, errors.Is(err, ErrInvalidArgument))

	// borrowing never reaches the store
	req, err := f.NewGenericRequest(NewNode("", "restart", ""), ConstReference)
	require.NoError(t, err)
	FreeRequest(req)
}

func TestUnknownParamType(t *testing.T) {
	f := NewFactory()

	_, err := f.NewGetRequest([]byte("/a"), ParamType(7))
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorContains(t, err, "ParamType(7)")

	_, err = f.NewCommitRequest(false, 0, nil, nil, ParamType(-1))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFreeRequestNil(t *testing.T) {
	assert.NotPanics(t, func() {
		FreeRequest(nil)
		FreeRequest((*GetRequest)(nil))
		FreeRequest((*LockRequest)(nil))
		FreeRequest((*KillSessionRequest)(nil))
	})
}

func TestPoolAllocator(t *testing.T) {
	a := NewPoolAllocator(0)

	src := []byte("running")
	dup, err := a.Dup(src)
	require.NoError(t, err)
	assert.Equal(t, src, dup)
	assert.Equal(t, len(src), a.Outstanding())

	src[0] = 'R'
	assert.Equal(t, "running", string(dup))

	a.Free(dup)
	a.Free(nil)
	assert.Zero(t, a.Outstanding())

	limited := NewPoolAllocator(4)
	_, err = limited.Dup([]byte("12345"))
	require.ErrorIs(t, err, ErrAllocation)
	assert.Zero(t, limited.Outstanding())

	ok, err := limited.Dup([]byte("1234"))
	require.NoError(t, err)
	assert.Equal(t, 4, limited.Outstanding())
	limited.Free(ok)
	assert.Zero(t, limited.Outstanding())
}

func TestPoolAllocatorConcurrent(t *testing.T) {
	a := NewPoolAllocator(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf, err := a.Dup([]byte("candidate"))
				if err != nil {
					t.Error(err)
					return
				}
				a.Free(buf)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, a.Outstanding())
}

func TestParamTypeString(t *testing.T) {
	assert.Equal(t, "by-reference", ByReference.String())
	assert.Equal(t, "dup-and-own", DupAndOwn.String())
	assert.Equal(t, "const-reference", ConstReference.String())
	assert.Equal(t, "ParamType(9)", ParamType(9).String())
}
