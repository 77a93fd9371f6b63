package eventbus

import (
	"hash/fnv"
	"strconv"
)

// workerIndex pins a topic partition to one worker so a partition's
// messages are handled in fetch order.
func workerIndex(topic string, partition, workers int) int {
	if workers <= 1 {
		return 0
	}
	return int(hashKey(topic+"/"+strconv.Itoa(partition)) % uint32(workers))
}

func hashKey(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}
