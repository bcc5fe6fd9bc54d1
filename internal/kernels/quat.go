package kernels

// Quaternions are stored (x, y, z, w) with w the scalar part, unit norm for
// valid samples. Flagged samples carry the null rotation (0, 0, 0, 1).

// rotateZAxis rotates the reference z-axis (0,0,1) by the quaternion at
// q[0:4], giving the detector pointing direction.
func rotateZAxis(q []float64) (x, y, z float64) {
	qx, qy, qz, qw := q[0], q[1], q[2], q[3]
	x = 2 * (qx*qz + qw*qy)
	y = 2 * (qy*qz - qw*qx)
	z = 1 - 2*(qx*qx+qy*qy)
	return
}

// rotateXAxis rotates the reference x-axis (1,0,0) by the quaternion at
// q[0:4], giving the detector orientation vector.
func rotateXAxis(q []float64) (x, y, z float64) {
	qx, qy, qz, qw := q[0], q[1], q[2], q[3]
	x = 1 - 2*(qy*qy+qz*qz)
	y = 2 * (qx*qy + qw*qz)
	z = 2 * (qx*qz - qw*qy)
	return
}

// polAngleTerms computes the atan2 operands of the polarization angle from
// one detector quaternion: by and bx such that ang = atan2(by, bx).
func polAngleTerms(q []float64) (by, bx float64) {
	dx, dy, dz := rotateZAxis(q)
	ox, oy, oz := rotateXAxis(q)
	by = ox*dy - oy*dx
	bx = ox*(-dz*dx) + oy*(-dz*dy) + oz*(dx*dx+dy*dy)
	return
}
