package webplatform

// Storage is a view of the host's window.localStorage. It holds no state of
// its own; every method is a foreign call.
type Storage struct {
	s *Session
}

// Len returns the number of stored keys.
func (st Storage) Len() (int, error) {
	ret, err := storageLength.Call(st.s.context(), st.s.invoker())
	return int(ret), err
}

// Clear removes every key.
func (st Storage) Clear() error {
	_, err := storageClear.Call(st.s.context(), st.s.invoker())
	return err
}

// Remove removes key. Removing a missing key is not an error.
func (st Storage) Remove(key string) error {
	_, err := storageRemove.Call(st.s.context(), st.s.invoker(), text(key))
	return err
}

// Set stores value under key.
func (st Storage) Set(key, value string) error {
	_, err := storageSet.Call(st.s.context(), st.s.invoker(), text(key), text(value))
	return err
}

// Get returns the value stored under key. ok is false when there is none.
func (st Storage) Get(key string) (string, bool, error) {
	ret, err := storageGet.Call(st.s.context(), st.s.invoker(), text(key))
	if err != nil {
		return "", false, err
	}
	return st.s.inv.OptString(ret)
}

// Key returns the key at index i in the host's key order. ok is false when
// i is out of range.
func (st Storage) Key(i int) (string, bool, error) {
	ret, err := storageKey.Call(st.s.context(), st.s.invoker(), i32(i))
	if err != nil {
		return "", false, err
	}
	return st.s.inv.OptString(ret)
}

// Iter returns an iterator over the stored keys.
func (st Storage) Iter() *StorageIterator {
	return &StorageIterator{st: st}
}

// StorageIterator walks the keys by index. It keeps only the index: each
// step re-reads the length and the key at that index, so changes made while
// iterating are seen rather than snapshotted.
//
//	it := storage.Iter()
//	for it.Next() {
//		fmt.Println(it.Key())
//	}
//	if err := it.Err(); err != nil { ... }
type StorageIterator struct {
	st    Storage
	index int
	key   string
	err   error
}

// Next advances to the next key and reports whether there is one.
func (it *StorageIterator) Next() bool {
	if it.err != nil {
		return false
	}
	n, err := it.st.Len()
	if err != nil {
		it.err = err
		return false
	}
	if it.index >= n {
		return false
	}
	key, ok, err := it.st.Key(it.index)
	if err != nil {
		it.err = err
		return false
	}
	if !ok {
		return false
	}
	it.index++
	it.key = key
	return true
}

// Key returns the key Next moved to.
func (it *StorageIterator) Key() string { return it.key }

// Err returns the error that stopped iteration, if any.
func (it *StorageIterator) Err() error { return it.err }

// Reset rewinds the iterator to the first key.
func (it *StorageIterator) Reset() {
	it.index = 0
	it.key = ""
	it.err = nil
}
