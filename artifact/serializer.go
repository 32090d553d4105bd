package artifact

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hatlonely/workerplane/indexer"
)

type Serializer[F, T any] interface {
	Serialize(from F) (T, error)
	Deserialize(to T) (F, error)
}

type MsgPackSerializer[T any] struct{}

func NewMsgPackSerializer[T any]() *MsgPackSerializer[T] {
	return &MsgPackSerializer[T]{}
}

func (s *MsgPackSerializer[T]) Serialize(from T) ([]byte, error) {
	return msgpack.Marshal(from)
}

func (s *MsgPackSerializer[T]) Deserialize(to []byte) (T, error) {
	var result T
	err := msgpack.Unmarshal(to, &result)
	return result, err
}

var indexSerializer Serializer[*indexer.WorkerIndex, []byte] = NewMsgPackSerializer[*indexer.WorkerIndex]()

// EncodeIndex 索引以 msgpack 编码后存储并交给计算引擎，控制面不再解读
func EncodeIndex(index *indexer.WorkerIndex) ([]byte, error) {
	if index == nil {
		return nil, errors.New("index is nil")
	}
	buf, err := indexSerializer.Serialize(index)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack.Marshal failed")
	}
	return buf, nil
}

func DecodeIndex(buf []byte) (*indexer.WorkerIndex, error) {
	index, err := indexSerializer.Deserialize(buf)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack.Unmarshal failed")
	}
	if index == nil {
		return nil, errors.New("empty index")
	}
	return index, nil
}
