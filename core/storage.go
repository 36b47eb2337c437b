package core

// storage.go – persistent block store, height/tip indexes and account
// state, backed by an ordered key-value engine with bloom filters on the
// negative-lookup-heavy namespaces. All multi-key writes go through a single
// atomic batch so the store is never left partially applied.

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Column families are simulated as key prefixes within a single LevelDB
// instance, following the same prefix-namespace convention used by
// prefix-iterator stores in the wider ecosystem.
var (
	nsBlocks       = []byte("b/")
	nsHeightIndex  = []byte("h/")
	nsBlockHeight  = []byte("bh/")
	nsMeta         = []byte("m/")
	nsStateBalance = []byte("sb/")
	nsStateNonce   = []byte("sn/")
)

var (
	metaTipHash    = append(append([]byte{}, nsMeta...), []byte("tip_hash")...)
	metaHeight     = append(append([]byte{}, nsMeta...), []byte("height")...)
	metaDifficulty = append(append([]byte{}, nsMeta...), []byte("difficulty")...)
	metaSupply     = append(append([]byte{}, nsMeta...), []byte("supply")...)
)

// Store is the single persistent engine backing one chain's blocks, height
// index, block-height index, chain-state meta, and account state. All six
// namespaces share one
// LevelDB instance so that a block's storage, index update, and state
// deltas can be staged onto one Batch and committed with one Store.Write
// call — the atomicity §4.3 requires would not be achievable across two
// separately-committed database handles.
type Store struct {
	db *leveldb.DB
}

// OpenStore opens (creating if absent) a LevelDB instance at dir with a
// bloom filter enabled on point lookups and Snappy block compression.
func OpenStore(dir string) (*Store, error) {
	opts := &opt.Options{
		Filter:      filter.NewBloomFilter(10),
		Compression: opt.SnappyCompression,
	}
	db, err := leveldb.OpenFile(dir, opts)
	if err != nil {
		return nil, storageErr("open store", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return storageErr("close store", err)
	}
	return nil
}

func blockKey(h Hash) []byte   { return append(append([]byte{}, nsBlocks...), h[:]...) }
func heightKey(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return append(append([]byte{}, nsHeightIndex...), b[:]...)
}
func balanceKey(a Address) []byte { return append(append([]byte{}, nsStateBalance...), a[:]...) }
func nonceKey(a Address) []byte   { return append(append([]byte{}, nsStateNonce...), a[:]...) }
func blockHeightKey(h Hash) []byte {
	return append(append([]byte{}, nsBlockHeight...), h[:]...)
}

// Batch stages a set of writes to be committed atomically via Store.Write.
type Batch struct{ b leveldb.Batch }

// NewBatch returns an empty atomic write batch.
func NewBatch() *Batch { return &Batch{} }

// PutBlock stages a block's JSON encoding keyed by its hash.
func (bt *Batch) PutBlock(blk *Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	bt.b.Put(blockKey(blk.Hash()), data)
	return nil
}

// PutHeightIndex stages height -> canonical block hash.
func (bt *Batch) PutHeightIndex(height uint64, hash Hash) {
	bt.b.Put(heightKey(height), hash[:])
}

// DeleteHeightIndex removes a height's canonical-hash entry. reorganize
// does not call it: the winning branch is longer than the one it replaces,
// so its entries overwrite every affected height.
func (bt *Batch) DeleteHeightIndex(height uint64) {
	bt.b.Delete(heightKey(height))
}

// PutBlockHeight stages the height at which a block (canonical or not) was
// first seen, so later blocks citing it as a parent can find its height
// without a chain walk.
func (bt *Batch) PutBlockHeight(hash Hash, height uint64) {
	bt.b.Put(blockHeightKey(hash), encodeU64(height))
}

// PutTip stages the chain-state meta fields.
func (bt *Batch) PutTip(tip ChainTip) {
	bt.b.Put(metaTipHash, tip.Hash[:])
	bt.b.Put(metaHeight, encodeU64(tip.Height))
	bt.b.Put(metaDifficulty, encodeU32(tip.Difficulty))
	bt.b.Put(metaSupply, encodeU64(tip.TotalSupply))
}

// PutBalance stages an account balance update.
func (bt *Batch) PutBalance(addr Address, balance uint64) {
	bt.b.Put(balanceKey(addr), encodeU64(balance))
}

// PutNonce stages an account nonce update.
func (bt *Batch) PutNonce(addr Address, nonce uint64) {
	bt.b.Put(nonceKey(addr), encodeU64(nonce))
}

func encodeU64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeU64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func encodeU32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func decodeU32(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Write commits a batch atomically. On failure no staged change is visible.
func (s *Store) Write(bt *Batch) error {
	if err := s.db.Write(&bt.b, nil); err != nil {
		return storageErr("commit batch", err)
	}
	return nil
}

// GetBlock fetches a block by hash from any branch, canonical or not.
func (s *Store) GetBlock(hash Hash) (*Block, error) {
	data, err := s.db.Get(blockKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get block", err)
	}
	var blk Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, storageErr("decode block", err)
	}
	return &blk, nil
}

// HasBlock reports whether hash is present in the blocks namespace.
func (s *Store) HasBlock(hash Hash) (bool, error) {
	ok, err := s.db.Has(blockKey(hash), nil)
	if err != nil {
		return false, storageErr("has block", err)
	}
	return ok, nil
}

// GetBlockHeight returns the height at which hash was first stored, if any.
func (s *Store) GetBlockHeight(hash Hash) (uint64, bool, error) {
	b, err := s.db.Get(blockHeightKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageErr("get block height", err)
	}
	return decodeU64(b), true, nil
}

// GetCanonicalHash returns the canonical block hash recorded at height.
func (s *Store) GetCanonicalHash(height uint64) (Hash, bool, error) {
	data, err := s.db.Get(heightKey(height), nil)
	if err == leveldb.ErrNotFound {
		return Hash{}, false, nil
	}
	if err != nil {
		return Hash{}, false, storageErr("get canonical hash", err)
	}
	var h Hash
	copy(h[:], data)
	return h, true, nil
}

// GetBlockByHeight resolves the canonical block at height via the height
// index, then fetches it.
func (s *Store) GetBlockByHeight(height uint64) (*Block, error) {
	data, err := s.db.Get(heightKey(height), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get height index", err)
	}
	var h Hash
	copy(h[:], data)
	return s.GetBlock(h)
}

// GetTip reads the current chain-state meta. A fresh store returns the zero
// ChainTip (height 0, zero hash).
func (s *Store) GetTip() (ChainTip, error) {
	var tip ChainTip
	hashB, err := s.db.Get(metaTipHash, nil)
	if err != nil && err != leveldb.ErrNotFound {
		return tip, storageErr("get tip hash", err)
	}
	copy(tip.Hash[:], hashB)

	if heightB, err := s.db.Get(metaHeight, nil); err == nil {
		tip.Height = decodeU64(heightB)
	} else if err != leveldb.ErrNotFound {
		return tip, storageErr("get height", err)
	}
	if diffB, err := s.db.Get(metaDifficulty, nil); err == nil {
		tip.Difficulty = decodeU32(diffB)
	} else if err != leveldb.ErrNotFound {
		return tip, storageErr("get difficulty", err)
	}
	if supB, err := s.db.Get(metaSupply, nil); err == nil {
		tip.TotalSupply = decodeU64(supB)
	} else if err != leveldb.ErrNotFound {
		return tip, storageErr("get supply", err)
	}
	return tip, nil
}

// BalanceOf returns the stored balance for addr, or 0 if untouched.
func (s *Store) BalanceOf(addr Address) (uint64, error) {
	b, err := s.db.Get(balanceKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("get balance", err)
	}
	return decodeU64(b), nil
}

// NonceOf returns the stored nonce for addr, or 0 if untouched.
func (s *Store) NonceOf(addr Address) (uint64, error) {
	b, err := s.db.Get(nonceKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("get nonce", err)
	}
	return decodeU64(b), nil
}

// StageStateReset stages a full replacement of the balance and nonce
// namespaces onto bt: every existing entry is deleted and replaced by the
// given maps. The caller commits bt (typically alongside the block/height/
// meta writes for the same reorg) in a single Store.Write call, so the
// state rebuild and the chain-history rewrite land in one atomic batch.
func (s *Store) StageStateReset(bt *Batch, balances map[Address]uint64, nonces map[Address]uint64) error {
	for _, prefix := range [][]byte{nsStateBalance, nsStateNonce} {
		iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
		for iter.Next() {
			bt.b.Delete(append([]byte{}, iter.Key()...))
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return storageErr("scan state namespace", err)
		}
	}
	for addr, bal := range balances {
		bt.PutBalance(addr, bal)
	}
	for addr, n := range nonces {
		bt.PutNonce(addr, n)
	}
	return nil
}

// TimestampsBefore returns up to n consecutive timestamps for the canonical
// chain ending at (and including) height, oldest first, used for
// median-time-past computation. Fewer than n are returned near genesis.
func (s *Store) TimestampsBefore(height uint64, n int) ([]uint64, error) {
	start := uint64(0)
	if height+1 > uint64(n) {
		start = height + 1 - uint64(n)
	}
	out := make([]uint64, 0, n)
	for h := start; h <= height; h++ {
		blk, err := s.GetBlockByHeight(h)
		if err != nil {
			return nil, err
		}
		if blk == nil {
			break
		}
		out = append(out, blk.Header.Timestamp)
	}
	return out, nil
}
