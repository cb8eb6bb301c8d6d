package engine

import (
	"sync"

	"github.com/foldsync/foldsync/internal/tree"
)

// passNo orders the three traversals of one base pair.
type passNo uint8

const (
	passZero  passNo = iota // prepare file moves
	passOne                 // delete files (or overwrite big with small)
	passTwo                 // copy the rest
	passNever               // item is not dispatched
)

// workItem performs one folder-, file- or symlink-level action. It runs with
// the core mutex held.
type workItem func(fps *folderPairSyncer) error

// workload distributes items across per-worker buckets plus a queue of
// containers still to be expanded. Buckets serve folder items before files
// and symlinks to maximize parallelization opportunity early and reduce the
// risk of work stealing; an idle worker steals half of the largest bucket.
type workload struct {
	pass  passNo
	coord *coordinator

	mu          sync.Mutex
	newWork     *sync.Cond
	idleThreads int
	buckets     [][]workItem
	folders     []tree.Container
	interrupted bool
}

func newWorkload(pass passNo, base *tree.BaseFolderPair, threadCount int, coord *coordinator) *workload {
	w := &workload{
		pass:    pass,
		coord:   coord,
		buckets: make([][]workItem, threadCount),
		folders: []tree.Container{base},
	}
	w.newWork = sync.NewCond(&w.mu)
	return w
}

// addFolderToProcess queues a container for deeper expansion and wakes idle
// workers.
func (w *workload) addFolderToProcess(c tree.Container) {
	w.mu.Lock()
	w.folders = append(w.folders, c)
	w.mu.Unlock()
	w.newWork.Broadcast()
}

// interrupt releases workers blocked on the empty-workload wait.
func (w *workload) interrupt() {
	w.mu.Lock()
	w.interrupted = true
	w.mu.Unlock()
	w.newWork.Broadcast()
}

func (w *workload) haveNewWork() bool {
	if len(w.folders) > 0 {
		return true
	}
	for _, b := range w.buckets {
		if len(b) > 0 {
			return true
		}
	}
	return false
}

// getNext blocks until a work item is available for the worker. It returns
// errInterrupted when the pass is being torn down.
func (w *workload) getNext(threadIdx int) (workItem, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		for {
			if w.interrupted {
				return nil, errInterrupted
			}
			if bucket := w.buckets[threadIdx]; len(bucket) > 0 {
				item := bucket[len(bucket)-1]
				w.buckets[threadIdx] = bucket[:len(bucket)-1]
				return item, nil
			}
			if len(w.folders) > 0 {
				c := w.folders[len(w.folders)-1]
				w.folders = w.folders[:len(w.folders)-1]
				appendFolderLevelWorkItems(w.pass, c, &w.buckets[threadIdx], &w.folders)
				continue
			}
			break
		}

		// steal half of the largest bucket
		maxIdx := 0
		for i := range w.buckets {
			if len(w.buckets[i]) > len(w.buckets[maxIdx]) {
				maxIdx = i
			}
		}
		if victim := w.buckets[maxIdx]; len(victim) > 0 { // implies maxIdx != threadIdx
			kept := victim[:0]
			for pos, item := range victim {
				if pos%2 == 0 {
					w.buckets[threadIdx] = append(w.buckets[threadIdx], item)
				} else {
					kept = append(kept, item)
				}
			}
			w.buckets[maxIdx] = kept

			own := w.buckets[threadIdx]
			item := own[len(own)-1]
			w.buckets[threadIdx] = own[:len(own)-1]
			return item, nil
		}

		w.idleThreads++
		if w.idleThreads == len(w.buckets) {
			w.coord.notifyAllDone()
		}
		w.coord.notifyWorkEnd(threadIdx)
		for !w.haveNewWork() && !w.interrupted {
			w.newWork.Wait()
		}
		w.coord.notifyWorkBegin(threadIdx)
		w.idleThreads--
	}
}

// appendFolderLevelWorkItems expands one container into work items for the
// current pass. Folders matching the pass get a closure that synchronizes the
// folder and then re-queues it for deeper expansion; non-matching folders are
// queued for expansion directly. The freshly appended ranges are reversed so
// LIFO retrieval yields natural source order.
func appendFolderLevelWorkItems(pass passNo, c tree.Container, items *[]workItem, folders *[]tree.Container) {
	itemCountOld := len(*items)
	folderCountOld := len(*folders)

	for _, folder := range c.SubFolders() {
		folder := folder
		if pass == getFolderPass(folder) {
			*items = append(*items, func(fps *folderPairSyncer) error {
				if _, err := fps.coord.tryReporting(fps.threadIdx, func() error {
					return fps.synchronizeFolder(folder)
				}); err != nil {
					return err
				}
				// TODO: queueing the folder only after its own sync delays
				// child processing behind siblings (unnatural order)
				fps.workload.addFolderToProcess(folder)
				return nil
			})
		} else {
			*folders = append(*folders, folder)
		}
	}

	for _, file := range c.SubFiles() {
		file := file
		if pass == passZero {
			*items = append(*items, func(fps *folderPairSyncer) error {
				return fps.prepareFileMove(file)
			})
		} else if pass == getFilePass(file) {
			*items = append(*items, func(fps *folderPairSyncer) error {
				_, err := fps.coord.tryReporting(fps.threadIdx, func() error {
					return fps.synchronizeFile(file)
				})
				return err
			})
		}
	}

	for _, link := range c.SubLinks() {
		link := link
		if pass == getLinkPass(link) {
			*items = append(*items, func(fps *folderPairSyncer) error {
				_, err := fps.coord.tryReporting(fps.threadIdx, func() error {
					return fps.synchronizeLink(link)
				})
				return err
			})
		}
	}

	reverseRange(*items, itemCountOld)
	reverseContainers(*folders, folderCountOld)
}

func reverseRange(items []workItem, from int) {
	for i, j := from, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

func reverseContainers(folders []tree.Container, from int) {
	for i, j := from, len(folders)-1; i < j; i, j = i+1, j-1 {
		folders[i], folders[j] = folders[j], folders[i]
	}
}
