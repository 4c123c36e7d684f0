package store

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"

	"shardbft/types"
)

const (
	tableBlock = "block"
	tableLast  = "last"
)

// ErrBlockNotFound 归档中没有这个序号的区块
var ErrBlockNotFound = errors.New("block not found in store")

// NewKVStore 打开dir下名为name的数据库，backend为goleveldb或memdb
func NewKVStore(name, dir, backend string, logger log.Logger) (*KVStore, error) {
	db, err := tmdb.NewDB(name, tmdb.BackendType(backend), dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s db %s in %s", backend, name, dir)
	}
	return NewKVStoreWithDB(db, logger), nil
}

func NewKVStoreWithDB(kvdb tmdb.DB, logger log.Logger) *KVStore {
	return &KVStore{kvDB: kvdb, logger: logger}
}

// KVStore 已提交区块的归档，实现state.Store
// table definition:
// block table: key=block/{shardID}/{seq, 20位补零}; value=tmjson(block)
// last table: key=last/{shardID}; value=string(seq)
type KVStore struct {
	kvDB tmdb.DB

	logger log.Logger
}

// SaveBlock 区块和最大序号在同一个batch里写入
func (kv *KVStore) SaveBlock(shardID string, block *types.Block) error {
	bz, err := tmjson.Marshal(block)
	if err != nil {
		return errors.Wrap(err, "marshal block")
	}

	batch := kv.kvDB.NewBatch()
	defer batch.Close()

	if err := batch.Set(blockKey(shardID, block.SequenceNo), bz); err != nil {
		return err
	}
	last, err := kv.LastSequence(shardID)
	if err != nil {
		return err
	}
	if block.SequenceNo > last {
		if err := batch.Set(genKey(tableLast, shardID), int2byte(block.SequenceNo)); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "write batch")
	}

	kv.logger.Debug("archived block", "shard", shardID, "seq", block.SequenceNo, "hash", block.Hash)
	return nil
}

func (kv *KVStore) LoadBlock(shardID string, sequenceNo int64) (*types.Block, error) {
	bz, err := kv.kvDB.Get(blockKey(shardID, sequenceNo))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, errors.Wrapf(ErrBlockNotFound, "shard %s seq %d", shardID, sequenceNo)
	}
	block := new(types.Block)
	if err := tmjson.Unmarshal(bz, block); err != nil {
		return nil, errors.Wrap(err, "unmarshal block")
	}
	return block, nil
}

func (kv *KVStore) LastSequence(shardID string) (int64, error) {
	bz, err := kv.kvDB.Get(genKey(tableLast, shardID))
	if err != nil {
		return -1, err
	}
	if bz == nil {
		return -1, nil
	}
	return byte2int(bz)
}

// Blocks 按序号顺序返回一个分片的全部归档区块
func (kv *KVStore) Blocks(shardID string) ([]*types.Block, error) {
	ite, err := tmdb.IteratePrefix(kv.kvDB, genKey(tableBlock, shardID+"/"))
	if err != nil {
		return nil, err
	}
	defer ite.Close()

	var blocks []*types.Block
	for ; ite.Valid(); ite.Next() {
		block := new(types.Block)
		if err := tmjson.Unmarshal(ite.Value(), block); err != nil {
			return nil, errors.Wrapf(err, "unmarshal block at %s", ite.Key())
		}
		blocks = append(blocks, block)
	}
	return blocks, ite.Error()
}

func (kv *KVStore) GetDB() tmdb.DB {
	return kv.kvDB
}

func (kv *KVStore) Close() error {
	return kv.kvDB.Close()
}

func blockKey(shardID string, seq int64) []byte {
	return genKey(tableBlock, fmt.Sprintf("%s/%020d", shardID, seq))
}

func genKey(table string, primaryKey string) []byte {
	buffer := new(bytes.Buffer)
	buffer.WriteString(table)
	buffer.WriteByte('/')
	buffer.WriteString(primaryKey)
	return buffer.Bytes()
}

func byte2int(src []byte) (int64, error) {
	return strconv.ParseInt(string(src), 10, 64)
}

func int2byte(src int64) []byte {
	return []byte(strconv.FormatInt(src, 10))
}
