package font

import "github.com/golang/freetype/truetype"

type FaceFamily struct {
	family    *Family
	pointSize float64

	regularFace *Face
	boldFace    *Face
}

func (ff *FaceFamily) Family() *Family {
	return ff.family
}

func (ff *FaceFamily) Size() float64 {
	return ff.pointSize
}

func (ff *FaceFamily) Face(bold bool) *Face {
	if bold {
		return ff.Bold()
	}
	return ff.Regular()
}

func (ff *FaceFamily) newFace(f *truetype.Font, bold bool) *Face {
	opts := ff.family.options
	opts.Size = ff.pointSize
	return &Face{
		Face:       truetype.NewFace(f, &opts),
		faceFamily: ff,
		bold:       bold,
	}
}

func (ff *FaceFamily) Regular() *Face {
	if ff.regularFace == nil {
		ff.regularFace = ff.newFace(ff.family.regularFont, false)
	}
	return ff.regularFace
}

func (ff *FaceFamily) Bold() *Face {
	if ff.boldFace == nil {
		ff.boldFace = ff.newFace(ff.family.boldFont, true)
	}
	return ff.boldFace
}
